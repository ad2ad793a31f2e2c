package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fimbiz-sync/internal/store"
)

func TestRunnerSucceedsAfterConflict(t *testing.T) {
	r := NewRunner(zap.NewNop())

	attempts := 0
	var seenPrev []error
	err := r.Run(context.Background(), "test", func(ctx context.Context, prev error) error {
		attempts++
		seenPrev = append(seenPrev, prev)
		if attempts < 3 {
			return store.ErrVersionConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// First pass sees no prior error, later passes see the conflict.
	assert.Nil(t, seenPrev[0])
	assert.ErrorIs(t, seenPrev[1], store.ErrVersionConflict)
	assert.ErrorIs(t, seenPrev[2], store.ErrVersionConflict)
}

func TestRunnerExhaustsRetries(t *testing.T) {
	r := NewRunner(zap.NewNop())

	attempts := 0
	err := r.Run(context.Background(), "test", func(ctx context.Context, prev error) error {
		attempts++
		return store.ErrVersionConflict
	})

	require.Error(t, err)
	assert.Equal(t, MaxAttempts, attempts)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestRunnerStopsOnPermanentError(t *testing.T) {
	r := NewRunner(zap.NewNop())

	permanent := errors.New("bad payload")
	attempts := 0
	err := r.Run(context.Background(), "test", func(ctx context.Context, prev error) error {
		attempts++
		return permanent
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, permanent)
}

func TestRunnerRetriesDuplicateKey(t *testing.T) {
	r := NewRunner(zap.NewNop())

	attempts := 0
	err := r.Run(context.Background(), "test", func(ctx context.Context, prev error) error {
		attempts++
		if attempts == 1 {
			return &store.DuplicateError{Field: store.FieldOrderNumber}
		}
		// The work is expected to drop the offending field on retry.
		assert.True(t, store.IsDuplicateOf(prev, store.FieldOrderNumber))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(store.ErrVersionConflict))
	assert.True(t, Retryable(&store.DuplicateError{Field: store.FieldRemoteOrderID}))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(store.ErrNotFound))
}
