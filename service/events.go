package service

import (
	"context"
	"encoding/json"
	"time"

	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

// Emitter 이벤트를 직렬화해서 버스로 발행.
// 상태 변경은 이미 커밋된 뒤라 발행 실패는 로그와 메트릭만 남기고 되돌리지 않는다.
type Emitter struct {
	publisher repository.EventPublisher
	logger    *zap.SugaredLogger
}

func ProvideEmitter(publisher repository.EventPublisher, loggerFactory *infra.LoggerFactory) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    loggerFactory.Create("Events").Sugar(),
	}
}

func (e *Emitter) Emit(ctx context.Context, t event.Type, roomID, matchID int64, payload any) error {
	env, err := event.New(t, roomID, matchID, payload)
	if err != nil {
		e.logger.Errorf("cannot build event type[%v] %v", t, err)
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		e.logger.Errorf("cannot marshal event type[%v] %v", t, err)
		return err
	}

	// 요청이 끝났어도 이벤트는 나가야 함
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	topic := env.Topic()
	if err := e.publisher.Publish(ctx, topic, env.Key(), value); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		e.logger.Errorf("publish failed type[%v] room[%v] match[%v] %v", t, roomID, matchID, err)
		return err
	}
	metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()
	e.logger.Debugf("published type[%v] room[%v] match[%v]", t, roomID, matchID)
	return nil
}
