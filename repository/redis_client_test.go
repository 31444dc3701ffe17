package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockRepository() (*RedisRepository, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisRepository(db), mock
}

func TestStoreErr_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"loading", errors.New("LOADING Redis is loading the dataset in memory"), true},
		{"readonly", errors.New("READONLY You can't write against a read only replica."), true},
		{"pool timeout", errors.New("redis: connection pool timeout"), true},
		{"script error", errors.New("ERR user_script:1: Script attempted to access nonexistent global variable"), false},
		{"wrong type", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeErr("op", tt.err)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.ErrorContains(t, err, "op")
		})
	}
	assert.NoError(t, storeErr("op", nil))
}

func TestFindOwnerWithGrade_Mock(t *testing.T) {
	repo, mock := setupMockRepository()
	ctx := context.Background()
	key := seatKey(testSeat)

	mock.ExpectGet(key).RedisNil()
	owner, err := repo.FindOwnerWithGrade(ctx, testSeat)
	require.NoError(t, err)
	assert.Nil(t, owner)

	mock.ExpectGet(key).SetVal("12:A:SOLD")
	owner, err = repo.FindOwnerWithGrade(ctx, testSeat)
	require.NoError(t, err)
	assert.Equal(t, &SeatOwner{UserID: 12, Grade: "A"}, owner)

	mock.ExpectGet(key).SetErr(context.DeadlineExceeded)
	_, err = repo.FindOwnerWithGrade(ctx, testSeat)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserve_StoreUnavailable(t *testing.T) {
	repo, mock := setupMockRepository()
	ctx := context.Background()

	keys := []string{seatKey(testSeat), matchStatusKey(testSeat.MatchID), seatIndexKey(testSeat.MatchID)}
	mock.ExpectEvalSha(reserveScript.Hash(), keys, "1:R", int64(60000)).
		SetErr(errors.New("LOADING Redis is loading the dataset in memory"))

	_, err := repo.TryReserve(ctx, testSeat, SeatOwner{UserID: 1, Grade: "R"}, time.Minute)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueue_StoreUnavailable(t *testing.T) {
	repo, mock := setupMockRepository()
	ctx := context.Background()

	keys := []string{metaKey(1), waitingKey(1), userKey(1, 5), seqKey(1)}
	mock.ExpectEvalSha(enqueueScript.Hash(), keys, int64(5)).SetErr(context.DeadlineExceeded)

	_, err := repo.Enqueue(ctx, 1, 5)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
