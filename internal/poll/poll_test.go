package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilDone(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Options{Interval: time.Millisecond, Timeout: time.Second}, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilTimesOut(t *testing.T) {
	err := Until(context.Background(), Options{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestUntilParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Until(ctx, Options{Interval: time.Millisecond, Timeout: time.Second}, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntilErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("fails fast without tolerance", func(t *testing.T) {
		err := Until(context.Background(), Options{Interval: time.Millisecond}, func(ctx context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("tolerates transient errors", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), Options{Interval: time.Millisecond, TolerateErrors: 2}, func(ctx context.Context) (bool, error) {
			calls++
			if calls <= 2 {
				return false, boom
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestUntilRejectsZeroInterval(t *testing.T) {
	err := Until(context.Background(), Options{}, func(ctx context.Context) (bool, error) { return true, nil })
	assert.Error(t, err)
}
