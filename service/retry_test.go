package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ticket-queue/infra"
	"ticket-queue/repository"

	"github.com/stretchr/testify/assert"
)

var errTransient = fmt.Errorf("test: %w", repository.ErrStoreUnavailable)

func newTestRetrier(attempts int) *Retrier {
	return NewRetrier(attempts, time.Millisecond, 4*time.Millisecond, 50*time.Millisecond, infra.NewNopLoggerFactory())
}

func TestRetrier_RetriesTransientUntilSuccess(t *testing.T) {
	r := newTestRetrier(4)
	calls := 0
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_TerminalErrorIsNotRetried(t *testing.T) {
	r := newTestRetrier(4)
	calls := 0
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return repository.ErrNotOwner
	})
	assert.ErrorIs(t, err, repository.ErrNotOwner)
	assert.Equal(t, 1, calls)
}

func TestRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	r := newTestRetrier(3)
	calls := 0
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errTransient
	})
	assert.True(t, repository.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsWhenContextDone(t *testing.T) {
	r := NewRetrier(10, time.Second, time.Second, 0, infra.NewNopLoggerFactory())
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.True(t, repository.IsTransient(err))
	assert.Equal(t, 1, calls)
}

func TestRetrier_AttemptTimeout(t *testing.T) {
	r := newTestRetrier(1)
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	err = r.DoLong(context.Background(), "test", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestRetrier_BackoffBounds(t *testing.T) {
	r := NewRetrier(10, 10*time.Millisecond, 40*time.Millisecond, 0, infra.NewNopLoggerFactory())
	for attempt := 1; attempt <= 8; attempt++ {
		d := r.backoff(attempt)
		want := min(10*time.Millisecond<<(attempt-1), 40*time.Millisecond)
		assert.GreaterOrEqual(t, d, want/2, "attempt %d", attempt)
		assert.LessOrEqual(t, d, want, "attempt %d", attempt)
	}
}
