package service

import (
	"context"
	"math/rand"
	"time"

	"ticket-queue/config"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

// Retrier re-runs store calls that failed with ErrStoreUnavailable, with
// jittered exponential backoff. Every attempt gets its own timeout so a
// hung connection counts as a transient failure.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	timeout     time.Duration

	logger *zap.SugaredLogger
}

func ProvideRetrier(cfg *config.Config, loggerFactory *infra.LoggerFactory) *Retrier {
	return NewRetrier(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.StoreTimeout, loggerFactory)
}

func NewRetrier(maxAttempts int, baseDelay, maxDelay, timeout time.Duration, loggerFactory *infra.LoggerFactory) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		timeout:     timeout,
		logger:      loggerFactory.Create("Retrier").Sugar(),
	}
}

// Do: 성공하거나 재시도 불가 에러가 나거나 시도 횟수를 다 쓸 때까지 fn 실행.
// 마지막 에러를 그대로 반환
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.run(ctx, op, true, fn)
}

// DoLong is Do without the per-attempt timeout, for fn that makes many
// round trips (each still bounded by the client's own timeouts).
func (r *Retrier) DoLong(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.run(ctx, op, false, fn)
}

func (r *Retrier) run(ctx context.Context, op string, bounded bool, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if bounded {
			err = r.attempt(ctx, fn)
		} else {
			err = fn(ctx)
		}
		if err == nil || !repository.IsTransient(err) {
			return err
		}
		if attempt >= r.maxAttempts || ctx.Err() != nil {
			break
		}

		delay := r.backoff(attempt)
		metrics.StoreRetries.WithLabelValues(op).Inc()
		r.logger.Warnf("retrying op[%v] attempt[%v/%v] delay[%v] %v", op, attempt, r.maxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	r.logger.Errorf("giving up op[%v] after attempts[%v] %v", op, r.maxAttempts, err)
	return err
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

// backoff: [d/2, d] 범위의 대기 시간 (d는 시도마다 두 배, 최대 maxDelay)
func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.baseDelay << (attempt - 1)
	if d <= 0 || d > r.maxDelay {
		d = r.maxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
