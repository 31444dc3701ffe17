package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticket-queue/config"
	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// recordingPublisher keeps every published envelope in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Envelope
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ []byte, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	env, err := event.Decode(value)
	if err != nil {
		return err
	}
	p.events = append(p.events, env)
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t event.Type) []*event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*event.Envelope
	for _, e := range p.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		StoreTimeout:     time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
		SeatHoldTTL:      time.Minute,
		AdmitBatch:       2,
		PromoteInterval:  10 * time.Millisecond,
		CapacitySmall:    2,
		CapacityMedium:   10,
		CapacityLarge:    30,
	}
}

type testEnv struct {
	mr        *miniredis.Miniredis
	repo      *repository.RedisRepository
	pub       *recordingPublisher
	retrier   *Retrier
	admission *AdmissionController
	queue     *QueueService
	seats     *SeatService
	lifecycle *LifecycleService
	promoter  *Promoter
}

type (
	queueWrapper func(repository.QueueRepository) repository.QueueRepository
	seatWrapper  func(repository.SeatLockRepository) repository.SeatLockRepository
)

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWith(t, nil, nil)
}

// setupTestEnvWith lets a test wrap the queue or seat store, e.g. to
// inject failures. nil keeps the Redis store as is.
func setupTestEnvWith(t *testing.T, wrapQueue queueWrapper, wrapSeats seatWrapper) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewRedisRepository(client)
	var queueRepo repository.QueueRepository = repo
	if wrapQueue != nil {
		queueRepo = wrapQueue(repo)
	}
	var seatRepo repository.SeatLockRepository = repo
	if wrapSeats != nil {
		seatRepo = wrapSeats(repo)
	}

	cfg := testConfig()
	lf := infra.NewNopLoggerFactory()
	pub := &recordingPublisher{}
	emitter := ProvideEmitter(pub, lf)
	retrier := ProvideRetrier(cfg, lf)
	admission := ProvideAdmissionController(queueRepo, emitter, retrier, cfg, lf)

	return &testEnv{
		mr:        mr,
		repo:      repo,
		pub:       pub,
		retrier:   retrier,
		admission: admission,
		queue:     ProvideQueueService(queueRepo, admission, emitter, retrier, cfg, lf),
		seats:     ProvideSeatService(seatRepo, emitter, retrier, cfg, lf),
		lifecycle: ProvideLifecycleService(queueRepo, seatRepo, emitter, retrier, cfg, lf),
		promoter:  ProvidePromoter(queueRepo, admission, cfg, lf),
	}
}

func (e *testEnv) openRoom(t *testing.T, roomID, capacity int64) {
	t.Helper()
	room, err := e.queue.OpenRoom(context.Background(), roomID, 500, capacity)
	require.NoError(t, err)
	require.Equal(t, repository.RoomOpen, room.State)
}

func (e *testEnv) state(t *testing.T, roomID, userID int64) repository.QueueState {
	t.Helper()
	pos, err := e.queue.Position(context.Background(), roomID, userID)
	if err != nil {
		require.ErrorIs(t, err, repository.ErrNotQueued)
		return repository.StateLeft
	}
	return pos.State
}
