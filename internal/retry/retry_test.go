package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/model"
)

func TestStrategy_Delays_Doubling(t *testing.T) {
	s := Strategy{Attempts: 4, Delay: 100 * time.Millisecond, Backoff: 2}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, s.Delays())
}

func TestStrategy_Delays_Capped(t *testing.T) {
	s := Strategy{Attempts: 5, Delay: time.Second, Backoff: 10, MaxDelay: 5 * time.Second}
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, s.Delays())
}

func TestStrategy_Delays_SingleAttempt(t *testing.T) {
	assert.Empty(t, Strategy{Attempts: 1, Delay: time.Second}.Delays())
	assert.Empty(t, Strategy{}.Delays())
}

func TestStrategy_Wait_IgnoresAttempts(t *testing.T) {
	s := Strategy{Delay: time.Second, Backoff: 2, MaxDelay: 30 * time.Second}
	var got []time.Duration
	for n := 1; n <= 7; n++ {
		got = append(got, s.Wait(n))
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)
	assert.Equal(t, 30*time.Second, s.Wait(1000), "large n stays capped")
	assert.Equal(t, time.Second, s.Wait(0))
}

func TestStrategy_Do_SucceedsAfterRetries(t *testing.T) {
	s := Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 2}
	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("lock wait timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStrategy_Do_Exhausted(t *testing.T) {
	s := Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 2}
	boom := errors.New("boom")
	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExhaustedRetries)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestStrategy_Do_PermanentStopsImmediately(t *testing.T) {
	s := Strategy{Attempts: 5, Delay: time.Millisecond}
	bad := errors.New("malformed")
	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(bad)
	})
	assert.ErrorIs(t, err, bad)
	assert.NotErrorIs(t, err, model.ErrExhaustedRetries)
	assert.Equal(t, 1, calls)
}

func TestStrategy_Do_ContextCancelledDuringWait(t *testing.T) {
	s := Strategy{Attempts: 3, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := s.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
