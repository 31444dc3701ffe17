package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-queue/event"
	"ticket-queue/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seatA = repository.SeatKey{MatchID: 100, SectionID: "008", RowNumber: "9-15"}

func TestSeatService_OneWinnerUnderContention(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for uid := int64(1); uid <= 50; uid++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			ok, err := env.seats.TryReserve(ctx, seatA, uid, "R", 0)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Len(t, env.pub.ofType(event.SeatHeld), 1)

	owner, err := env.seats.FindOwnerWithGrade(ctx, seatA)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "R", owner.Grade)
}

func TestSeatService_DefaultHoldTTL(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	ok, err := env.seats.TryReserve(ctx, seatA, 1, "R", 0)
	require.NoError(t, err)
	require.True(t, ok)

	status, err := env.seats.SeatStatus(ctx, seatA)
	require.NoError(t, err)
	assert.Equal(t, repository.SeatHeld, status.State)
	assert.Greater(t, status.TTL, 50*time.Second)
	assert.LessOrEqual(t, status.TTL, time.Minute)

	env.mr.FastForward(time.Minute + time.Second)
	_, found, err := env.seats.FindOwner(ctx, seatA)
	require.NoError(t, err)
	assert.False(t, found)
}

// lostReplySeats applies the first TryReserve but reports a transient
// failure.
type lostReplySeats struct {
	repository.SeatLockRepository
	mu   sync.Mutex
	lost bool
}

func (s *lostReplySeats) TryReserve(ctx context.Context, seat repository.SeatKey, owner repository.SeatOwner, ttl time.Duration) (bool, error) {
	ok, err := s.SeatLockRepository.TryReserve(ctx, seat, owner, ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && !s.lost {
		s.lost = true
		return false, errTransient
	}
	return ok, err
}

func TestSeatService_TryReserveRetryChecksOwner(t *testing.T) {
	env := setupTestEnvWith(t, nil, func(inner repository.SeatLockRepository) repository.SeatLockRepository {
		return &lostReplySeats{SeatLockRepository: inner}
	})
	ctx := context.Background()

	ok, err := env.seats.TryReserve(ctx, seatA, 1, "R", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.seats.TryReserve(ctx, seatA, 2, "R", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeatService_ReleaseOnlyByOwner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	ok, err := env.seats.TryReserve(ctx, seatA, 1, "R", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := env.seats.Release(ctx, seatA, 2)
	assert.ErrorIs(t, err, repository.ErrNotOwner)
	assert.False(t, released)

	released, err = env.seats.Release(ctx, seatA, 1)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = env.seats.Release(ctx, seatA, 1)
	require.NoError(t, err)
	assert.False(t, released)

	events := env.pub.ofType(event.SeatReleased)
	require.Len(t, events, 1)
	var p event.SeatPayload
	require.NoError(t, events[0].DecodePayload(&p))
	assert.Equal(t, int64(1), p.UserID)
	assert.Equal(t, event.ReasonUser, p.Reason)
	assert.False(t, p.WasSold)
	assert.Equal(t, int64(100), events[0].MatchID)
}

func TestSeatService_ConfirmSale(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.seats.ConfirmSale(ctx, seatA, 1)
	assert.ErrorIs(t, err, repository.ErrExpired)

	ok, err := env.seats.TryReserve(ctx, seatA, 1, "VIP", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.seats.ConfirmSale(ctx, seatA, 2)
	assert.ErrorIs(t, err, repository.ErrNotOwner)

	owner, err := env.seats.ConfirmSale(ctx, seatA, 1)
	require.NoError(t, err)
	assert.Equal(t, repository.SeatOwner{UserID: 1, Grade: "VIP"}, owner)

	// Confirming again succeeds and re-emits.
	_, err = env.seats.ConfirmSale(ctx, seatA, 1)
	require.NoError(t, err)
	assert.Len(t, env.pub.ofType(event.SeatSold), 2)

	env.mr.FastForward(2 * time.Minute)
	status, err := env.seats.SeatStatus(ctx, seatA)
	require.NoError(t, err)
	assert.Equal(t, repository.SeatSold, status.State)

	// Cancelling the sale frees the seat and flags it.
	released, err := env.seats.Release(ctx, seatA, 1)
	require.NoError(t, err)
	assert.True(t, released)
	events := env.pub.ofType(event.SeatReleased)
	require.Len(t, events, 1)
	var p event.SeatPayload
	require.NoError(t, events[0].DecodePayload(&p))
	assert.True(t, p.WasSold)
}

func TestSeatService_InvalidSeat(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.seats.TryReserve(context.Background(), repository.SeatKey{MatchID: 1}, 1, "R", time.Minute)
	assert.ErrorIs(t, err, repository.ErrInvalidSeat)
}

func TestSeatService_GradeNamedSold(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	ok, err := env.seats.TryReserve(ctx, seatA, 1, "SOLD", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	owner, err := env.seats.FindOwnerWithGrade(ctx, seatA)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "SOLD", owner.Grade)

	sold, err := env.seats.ConfirmSale(ctx, seatA, 1)
	require.NoError(t, err)
	assert.Equal(t, repository.SeatOwner{UserID: 1, Grade: "SOLD"}, sold)

	env.mr.FastForward(2 * time.Minute)
	status, err := env.seats.SeatStatus(ctx, seatA)
	require.NoError(t, err)
	assert.Equal(t, repository.SeatSold, status.State)
}
