package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout_CompletesInTime(t *testing.T) {
	got, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestWithTimeout_PropagatesOperationError(t *testing.T) {
	opErr := errors.New("upstream said no")
	_, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "", opErr
	})
	assert.ErrorIs(t, err, opErr)
	assert.Equal(t, "", TagOf(err))
}

func TestWithTimeout_DeadlineExceeded(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, TagTimeout, TagOf(err))
	assert.True(t, Retryable(err, DefaultRetryableTags()))
	assert.Less(t, time.Since(start), time.Second)
}
