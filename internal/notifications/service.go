package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/pagination"
)

// Service defines notification read/browse operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkUnread(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	SubscribeUnreadCount(userID uuid.UUID, handler events.Handler) events.Unsubscribe
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type service struct {
	repo Repository
	bus  *events.Bus
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, bus *events.Bus, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event bus required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, bus: bus, now: now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := requireIDs(userID, notificationID); err != nil {
		return err
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if result.Updated {
		s.publishUnread(ctx, userID)
	}
	return nil
}

func (s *service) MarkUnread(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := requireIDs(userID, notificationID); err != nil {
		return err
	}

	result, err := s.repo.MarkUnread(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification unread")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if result.Updated {
		s.publishUnread(ctx, userID)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	if count > 0 {
		s.publishUnread(ctx, userID)
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := requireIDs(userID, notificationID); err != nil {
		return err
	}

	rows, err := s.repo.Delete(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	s.publishUnread(ctx, userID)
	return nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

// SubscribeUnreadCount delivers unread-count transitions for one user
// until the returned function is called.
func (s *service) SubscribeUnreadCount(userID uuid.UUID, handler events.Handler) events.Unsubscribe {
	return s.bus.Subscribe(func(ctx context.Context, event events.Event) {
		if event.UserID == userID {
			handler(ctx, event)
		}
	}, events.KindNotificationCreated, events.KindNotificationRead)
}

// DeleteOlderThan applies the retention window. The monitor worker
// calls this on its sweep cadence.
func (s *service) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete old notifications")
	}
	return count, nil
}

func (s *service) publishUnread(ctx context.Context, userID uuid.UUID) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindNotificationRead,
		UserID:  userID,
		Payload: count,
	})
}

func requireIDs(userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	return nil
}
