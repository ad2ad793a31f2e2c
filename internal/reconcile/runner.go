package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fimbiz-sync/internal/store"
)

// MaxAttempts bounds the reload-and-reapply loop.
const MaxAttempts = 3

// UnitOfWork is one read-modify-write pass over an aggregate. It must reload
// the aggregate from storage on every invocation and re-derive any dedup
// classification against the reloaded state; the prev argument carries the
// storage error from the preceding attempt so the work can drop an offending
// unique field before retrying.
type UnitOfWork func(ctx context.Context, prev error) error

// Runner retries a unit of work across optimistic-concurrency failures and
// unique-constraint races. Exhaustion surfaces the last error; a remote
// notification is never silently dropped.
type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log}
}

func (r *Runner) Run(ctx context.Context, name string, work UnitOfWork) error {
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := work(ctx, lastErr)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}

		lastErr = err
		r.log.Warn("storage race, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%s: retries exhausted: %w", name, lastErr)
}

// Retryable reports whether the storage error is a race the runner may
// resolve by reloading and reapplying.
func Retryable(err error) bool {
	if errors.Is(err, store.ErrVersionConflict) {
		return true
	}
	var dup *store.DuplicateError
	return errors.As(err, &dup)
}
