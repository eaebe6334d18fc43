package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
)

// creator is the slice of the repository the emitter writes through.
type creator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// EmitInput describes one notification to materialize from a template.
type EmitInput struct {
	UserID   uuid.UUID
	BookID   uuid.UUID
	Category enums.NotificationCategory
	// Data feeds both the template placeholders and the stored payload.
	Data map[string]string
	// Priority overrides the template's priority when set.
	Priority   *enums.NotificationPriority
	ActionURL  *string
	ActionText *string
	Source     string
	ExpiresAt  *time.Time
}

// Emitter renders templated notifications, persists them and announces
// them on the event bus.
type Emitter struct {
	repo creator
	bus  *events.Bus
	logg *logger.Logger
	now  func() time.Time
}

// NewEmitter builds a notification emitter.
func NewEmitter(repo creator, bus *events.Bus, logg *logger.Logger, now func() time.Time) (*Emitter, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus required")
	}
	if now == nil {
		now = time.Now
	}
	return &Emitter{repo: repo, bus: bus, logg: logg, now: now}, nil
}

// Emit persists one templated notification and publishes
// notification_created. An unknown category is a validation error.
func (e *Emitter) Emit(ctx context.Context, input EmitInput) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	tpl, ok := TemplateFor(input.Category)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification category %q", input.Category))
	}

	data := make(map[string]any, len(input.Data)+1)
	for key, value := range input.Data {
		data[key] = value
	}
	if input.BookID != uuid.Nil {
		data["bookId"] = input.BookID.String()
	}

	priority := tpl.Priority
	if input.Priority != nil {
		priority = *input.Priority
	}

	notification := &models.Notification{
		ID:         uuid.New(),
		UserID:     input.UserID,
		Type:       tpl.Type,
		Category:   input.Category,
		Title:      Render(tpl.Title, input.Data),
		Message:    Render(tpl.Message, input.Data),
		Data:       data,
		Priority:   priority,
		ActionURL:  input.ActionURL,
		ActionText: input.ActionText,
		Source:     input.Source,
		ExpiresAt:  input.ExpiresAt,
		CreatedAt:  e.now().UTC(),
	}

	if err := e.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist notification")
	}

	e.bus.Publish(ctx, events.Event{
		Kind:    events.KindNotificationCreated,
		UserID:  input.UserID,
		BookID:  input.BookID,
		Payload: *notification,
	})

	if e.logg != nil {
		fields := map[string]any{
			"category":        string(input.Category),
			"notification_id": notification.ID.String(),
		}
		e.logg.Info(e.logg.WithFields(e.logg.WithUserID(ctx, input.UserID.String()), fields), "notification emitted")
	}
	return notification, nil
}
