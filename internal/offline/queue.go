package offline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
)

// OpKind names one queued mutation.
type OpKind string

const (
	OpWishlistAdd    OpKind = "wishlist_add"
	OpWishlistUpdate OpKind = "wishlist_update"
	OpWishlistRemove OpKind = "wishlist_remove"
	OpCartAdd        OpKind = "cart_add"
	OpCartUpdateQty  OpKind = "cart_update_qty"
	OpCartRemove     OpKind = "cart_remove"
)

// Operation is the JSON envelope stored on the per-user redis list.
// Payload carries the kind-specific request body untouched.
type Operation struct {
	Kind     OpKind          `json:"kind"`
	UserID   uuid.UUID       `json:"userId"`
	BookID   uuid.UUID       `json:"bookId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	QueuedAt time.Time       `json:"queuedAt"`
}

// store is the slice of the redis client the queue uses.
type store interface {
	RPush(ctx context.Context, key string, values ...any) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error
	OfflineQueueKey(userID string) string
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// Queue is the durable per-user FIFO of mutations captured while the
// primary store was unreachable. Each domain gets its own list so one
// domain's replay never clears another's pending operations.
type Queue struct {
	store  store
	domain string
	logg   *logger.Logger
	now    func() time.Time
}

// NewQueue builds the queue over the redis list helpers, scoped to one
// domain ("wishlist", "cart"). now may be nil, in which case time.Now
// is used.
func NewQueue(s store, domain string, logg *logger.Logger, now func() time.Time) (*Queue, error) {
	if s == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offline queue store is required")
	}
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offline queue domain is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{store: s, domain: domain, logg: logg, now: now}, nil
}

func (q *Queue) key(userID uuid.UUID) string {
	return q.store.OfflineQueueKey(q.domain + ":" + userID.String())
}

// Enqueue appends one operation to the user's queue, stamping QueuedAt
// if the caller left it zero.
func (q *Queue) Enqueue(ctx context.Context, op Operation) error {
	if op.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = q.now()
	}
	encoded, err := json.Marshal(op)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode offline operation")
	}
	key := q.key(op.UserID)
	if _, err := q.store.RPush(ctx, key, string(encoded)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "push offline operation")
	}
	return nil
}

// Pending returns the number of queued operations for one user.
func (q *Queue) Pending(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := q.store.LLen(ctx, q.key(userID))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count offline operations")
	}
	return count, nil
}

// Replay drains the user's queue in FIFO order, handing each operation
// to apply. Failures are logged and counted but never retried: the queue
// is cleared after the single pass regardless of outcome, so a poisoned
// operation cannot wedge the queue forever.
func (q *Queue) Replay(ctx context.Context, userID uuid.UUID, apply func(ctx context.Context, op Operation) error) (ReplayReport, error) {
	key := q.key(userID)
	entries, err := q.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return ReplayReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read offline queue")
	}

	var report ReplayReport
	for _, raw := range entries {
		var op Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			report.Dropped++
			q.warn(ctx, userID, "dropping undecodable offline operation", err)
			continue
		}
		if err := apply(ctx, op); err != nil {
			report.Failed++
			q.warn(ctx, userID, "offline operation failed during replay", err)
			continue
		}
		report.Applied++
	}

	if err := q.store.Del(ctx, key); err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear offline queue")
	}
	return report, nil
}

func (q *Queue) warn(ctx context.Context, userID uuid.UUID, msg string, err error) {
	if q.logg == nil {
		return
	}
	ctx = q.logg.WithUserID(ctx, userID.String())
	if err != nil {
		ctx = q.logg.WithField(ctx, "error", err.Error())
	}
	q.logg.Warn(ctx, msg)
}
