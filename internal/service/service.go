package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/events"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// Actor identifies the caller of a service operation.
type Actor struct {
	ID    string
	OrgID string
}

// Clock returns the current time; services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// ConflictPolicy bounds how often a unit of work is re-run after a version conflict.
type ConflictPolicy struct {
	MaxRetries int
	Interval   time.Duration
}

// withConflictRetry re-runs fn while it fails with a version conflict. fn must re-read
// state so every gate is evaluated against a fresh snapshot.
func withConflictRetry(ctx context.Context, policy ConflictPolicy, fn func(ctx context.Context) error) error {
	interval := policy.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return apperrors.NewConflict("record was modified concurrently, retry the request", nil)
	}
	return err
}

// notFoundOr maps a missing row to a NOT_FOUND error naming the resource.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{resource + "_id": id})
	}
	return err
}

type eventPublisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func (p eventPublisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func strPtr(v string) *string {
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
