package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, _ []byte, value []byte) error {
	env, err := event.Decode(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func setupTestListener(t *testing.T) (*ExpiryListener, *redis.Client, *recordingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lf := infra.NewNopLoggerFactory()
	pub := &recordingPublisher{}
	return ProvideExpiryListener(client, service.ProvideEmitter(pub, lf), lf), client, pub
}

func TestExpiryListener_HandleExpired(t *testing.T) {
	l, _, pub := setupTestListener(t)
	ctx := context.Background()

	assert.False(t, l.HandleExpired(ctx, "queue:{1}:user:5"))
	assert.False(t, l.HandleExpired(ctx, "seat:{100}:index"))
	assert.Equal(t, 0, pub.count())

	require.True(t, l.HandleExpired(ctx, "seat:{100}:008:9-15"))
	require.Equal(t, 1, pub.count())

	e := pub.events[0]
	assert.Equal(t, event.SeatReleased, e.EventType)
	assert.Equal(t, int64(100), e.MatchID)
	var p event.SeatPayload
	require.NoError(t, e.DecodePayload(&p))
	assert.Equal(t, "008", p.SectionID)
	assert.Equal(t, "9-15", p.RowNumber)
	assert.Equal(t, event.ReasonExpired, p.Reason)
}

func TestExpiryListener_Run(t *testing.T) {
	l, client, pub := setupTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	channel := expiredChannel(0)
	assert.Eventually(t, func() bool {
		n, err := client.Publish(context.Background(), channel, "seat:{7}:A:1").Result()
		return err == nil && n > 0 && pub.count() > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
