package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaRepository 하나의 writer로 모든 토픽에 발행 (토픽은 메시지마다 지정)
type KafkaRepository struct {
	Writer  *kafka.Writer
	Brokers []string
}

func NewKafkaRepository(brokers []string) *KafkaRepository {
	return &KafkaRepository{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		Brokers: brokers,
	}
}

// Publish: 방(또는 매치) 단위 키를 붙여서 같은 파티션에 순서대로 쌓이게 한다
func (r *KafkaRepository) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := r.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return fmt.Errorf("kafka publish topic[%s]: %w", topic, err)
	}
	return nil
}

func (r *KafkaRepository) PublishToDLQ(ctx context.Context, topic string, key, value []byte, reason string) error {
	return r.Writer.WriteMessages(ctx,
		kafka.Message{
			Topic: topic,
			Key:   key,
			Value: value,
			Headers: []kafka.Header{
				{Key: "error_reason", Value: []byte(reason)},
			},
		},
	)
}

func (r *KafkaRepository) Close() error {
	return r.Writer.Close()
}
