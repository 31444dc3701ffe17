package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/repository"

	"github.com/go-sql-driver/mysql"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPurchaseRepository struct {
	mock.Mock
}

func (m *MockPurchaseRepository) SavePurchase(p *repository.Purchase) (bool, error) {
	args := m.Called(p)
	return args.Bool(0), args.Error(1)
}

func (m *MockPurchaseRepository) ExistsPurchase(seat repository.SeatKey) (bool, error) {
	args := m.Called(seat)
	return args.Bool(0), args.Error(1)
}

func (m *MockPurchaseRepository) DeletePurchase(seat repository.SeatKey, userID int64) error {
	args := m.Called(seat, userID)
	return args.Error(0)
}

type MockDLQ struct {
	mock.Mock
}

func (m *MockDLQ) PublishToDLQ(ctx context.Context, topic string, key, value []byte, reason string) error {
	args := m.Called(ctx, topic, key, value, reason)
	return args.Error(0)
}

// sliceReader hands out msgs in order, then blocks until ctx is done.
// With fetchErr set every fetch fails immediately.
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	fetchErr  error
	fetches   int
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	r.fetches++
	if r.fetchErr != nil {
		r.mu.Unlock()
		return kafka.Message{}, r.fetchErr
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *sliceReader) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *sliceReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func seatMessage(t *testing.T, offset int64, typ event.Type, p event.SeatPayload) kafka.Message {
	t.Helper()
	env, err := event.New(typ, 0, 100, p)
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: env.Key(), Value: value}
}

func setupTestWorker(reader messageReader) (*PurchaseWorker, *MockPurchaseRepository, *MockDLQ) {
	repo := new(MockPurchaseRepository)
	dlq := new(MockDLQ)
	w := newPurchaseWorker(reader, repo, dlq, nil, time.Millisecond, infra.NewNopLoggerFactory())
	return w, repo, dlq
}

var soldPayload = event.SeatPayload{SectionID: "008", RowNumber: "9-15", UserID: 7, Grade: "R"}

func TestPurchaseWorker_SavesSoldSeat(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})

	repo.On("SavePurchase", mock.MatchedBy(func(p *repository.Purchase) bool {
		return p.MatchID == 100 && p.SectionID == "008" && p.RowNumber == "9-15" && p.UserID == 7 && p.Grade == "R"
	})).Return(true, nil).Once()

	w.Handle(context.Background(), seatMessage(t, 1, event.SeatSold, soldPayload))

	repo.AssertExpectations(t)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseWorker_DuplicateIsNotAnError(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})

	repo.On("SavePurchase", mock.Anything).Return(false, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}).Once()

	w.Handle(context.Background(), seatMessage(t, 1, event.SeatSold, soldPayload))

	repo.AssertNumberOfCalls(t, "SavePurchase", 1)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseWorker_RetriesThenDLQ(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})
	msg := seatMessage(t, 3, event.SeatSold, soldPayload)

	repo.On("SavePurchase", mock.Anything).Return(false, errors.New("connection refused"))
	repo.On("ExistsPurchase", mock.Anything).Return(false, nil)
	dlq.On("PublishToDLQ", mock.Anything, event.TopicSeatDLQ, msg.Key, msg.Value, "connection refused").Return(nil).Once()

	w.Handle(context.Background(), msg)

	repo.AssertNumberOfCalls(t, "SavePurchase", maxRetries)
	dlq.AssertExpectations(t)
}

func TestPurchaseWorker_SaveLandedDespiteError(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})
	seat := repository.SeatKey{MatchID: 100, SectionID: "008", RowNumber: "9-15"}

	repo.On("SavePurchase", mock.Anything).Return(false, errors.New("i/o timeout")).Once()
	repo.On("ExistsPurchase", seat).Return(true, nil).Once()

	w.Handle(context.Background(), seatMessage(t, 1, event.SeatSold, soldPayload))

	repo.AssertExpectations(t)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseWorker_CancelOnlyForSoldSeats(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})
	seat := repository.SeatKey{MatchID: 100, SectionID: "008", RowNumber: "9-15"}

	repo.On("DeletePurchase", seat, int64(7)).Return(nil).Once()

	held := soldPayload
	held.Reason = event.ReasonUser
	w.Handle(context.Background(), seatMessage(t, 1, event.SeatReleased, held))

	cancelled := held
	cancelled.WasSold = true
	w.Handle(context.Background(), seatMessage(t, 2, event.SeatReleased, cancelled))

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "DeletePurchase", 1)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseWorker_IgnoresHeldEvents(t *testing.T) {
	w, repo, dlq := setupTestWorker(&sliceReader{})

	w.Handle(context.Background(), seatMessage(t, 1, event.SeatHeld, soldPayload))

	repo.AssertNotCalled(t, "SavePurchase", mock.Anything)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseWorker_UndecodableGoesToDLQ(t *testing.T) {
	w, _, dlq := setupTestWorker(&sliceReader{})
	msg := kafka.Message{Offset: 9, Value: []byte("not json")}

	dlq.On("PublishToDLQ", mock.Anything, event.TopicSeatDLQ, msg.Key, msg.Value, mock.AnythingOfType("string")).Return(nil).Once()

	w.Handle(context.Background(), msg)
	dlq.AssertExpectations(t)
}

func TestPurchaseWorker_StartCommitsAndStops(t *testing.T) {
	reader := &sliceReader{}
	w, repo, _ := setupTestWorker(reader)
	reader.msgs = []kafka.Message{
		seatMessage(t, 1, event.SeatSold, soldPayload),
		seatMessage(t, 2, event.SeatHeld, soldPayload),
	}
	repo.On("SavePurchase", mock.Anything).Return(true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return len(reader.commits()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.True(t, reader.closed)
}

func TestPurchaseWorker_StartBacksOffOnFetchError(t *testing.T) {
	reader := &sliceReader{fetchErr: errors.New("broker down")}
	w := newPurchaseWorker(reader, new(MockPurchaseRepository), new(MockDLQ), nil, 50*time.Millisecond, infra.NewNopLoggerFactory())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	// 50ms 간격이면 120ms 동안 최대 3번만 읽는다.
	assert.GreaterOrEqual(t, reader.fetchCount(), 1)
	assert.LessOrEqual(t, reader.fetchCount(), 3)
	assert.True(t, reader.closed)
}
