package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New("not a schedule", "user_1", func(ctx context.Context, userID string) error {
		return nil
	})
	assert.Error(t, err)
}

func TestStartRunsImmediateSync(t *testing.T) {
	var calls atomic.Int32
	s, err := New("*/5 * * * *", "user_1", func(ctx context.Context, userID string) error {
		calls.Add(1)
		assert.Equal(t, "user_1", userID)
		if _, ok := ctx.Deadline(); !ok {
			t.Error("sync context has no deadline")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, int32(1), calls.Load())
}

func TestStartPropagatesFirstSyncError(t *testing.T) {
	syncErr := errors.New("provider down")
	s, err := New("*/5 * * * *", "user_1", func(ctx context.Context, userID string) error {
		return syncErr
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Start(context.Background()), syncErr)
}
