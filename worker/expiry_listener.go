package worker

import (
	"context"
	"fmt"

	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/repository"
	"ticket-queue/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExpiryListener 좌석 키 만료 알림을 SEAT_RELEASED 이벤트로 변환.
// infra.ConfigureKeyspaceEvents로 알림을 먼저 켜야 한다.
// pub/sub이라 리스너가 끊겨 있는 동안의 만료는 전달되지 않는다.
type ExpiryListener struct {
	client *redis.Client
	events *service.Emitter

	logger *zap.SugaredLogger
}

func ProvideExpiryListener(client *redis.Client, events *service.Emitter, loggerFactory *infra.LoggerFactory) *ExpiryListener {
	return &ExpiryListener{
		client: client,
		events: events,
		logger: loggerFactory.Create("ExpiryListener").Sugar(),
	}
}

func expiredChannel(db int) string {
	return fmt.Sprintf("__keyevent@%d__:expired", db)
}

// Run: ctx가 끝날 때까지 구독
func (l *ExpiryListener) Run(ctx context.Context) {
	channel := expiredChannel(l.client.Options().DB)
	pubsub := l.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	l.logger.Infof("listening channel[%v]", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("expiry listener stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.HandleExpired(ctx, msg.Payload)
		}
	}
}

// HandleExpired: 좌석 키였는지 여부를 반환
func (l *ExpiryListener) HandleExpired(ctx context.Context, key string) bool {
	seat, err := repository.ParseSeatKey(key)
	if err != nil {
		return false
	}
	l.logger.Debugf("seat hold expired seat[%v]", seat)
	_ = l.events.Emit(ctx, event.SeatReleased, 0, seat.MatchID, event.SeatPayload{
		SectionID: seat.SectionID,
		RowNumber: seat.RowNumber,
		Reason:    event.ReasonExpired,
	})
	return true
}
