package unlock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aum/internal/services"
	"aum/internal/unlock"
)

func TestWaitForReturnsValue(t *testing.T) {
	calls := 0
	got, err := unlock.WaitFor(context.Background(), 5*time.Millisecond, time.Now().Add(time.Second), func() (string, bool, error) {
		calls++
		return "done", calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestWaitForTimeoutNeverEarly(t *testing.T) {
	start := time.Now()
	deadline := start.Add(120 * time.Millisecond)
	calls := 0
	_, err := unlock.WaitFor(context.Background(), 50*time.Millisecond, deadline, func() (int, bool, error) {
		calls++
		return 0, false, nil
	})
	assert.ErrorIs(t, err, services.ErrTimeout)
	assert.False(t, time.Now().Before(deadline), "timeout reported before deadline")
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, calls, 3, "a final check runs at the deadline")
}

func TestWaitForPropagatesCheckError(t *testing.T) {
	boom := errors.New("read failed")
	_, err := unlock.WaitFor(context.Background(), time.Millisecond, time.Now().Add(time.Second), func() (int, bool, error) {
		return 0, false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWaitForCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := unlock.WaitFor(ctx, 10*time.Millisecond, time.Now().Add(time.Minute), func() (int, bool, error) {
		return 0, false, nil
	})
	assert.ErrorIs(t, err, services.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}
