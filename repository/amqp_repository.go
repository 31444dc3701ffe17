package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPRepository 토픽 이름의 durable 큐로 이벤트를 발행.
// 라우팅 키는 message id에 담아서 컨슈머가 방/매치 단위로 묶을 수 있게 한다.
type AMQPRepository struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewAMQPRepository(url string) (*AMQPRepository, error) {
	r := &AMQPRepository{url: url, declared: make(map[string]bool)}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AMQPRepository) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel open: %w", err)
	}
	r.conn = conn
	r.ch = ch
	r.declared = make(map[string]bool)
	return nil
}

func (r *AMQPRepository) Publish(ctx context.Context, topic string, key, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}

	if !r.declared[topic] {
		if _, err := r.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue declare topic[%s]: %w", topic, err)
		}
		r.declared[topic] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    string(key),
		Body:         value,
	}
	if err := r.ch.PublishWithContext(ctx, "", topic, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish topic[%s]: %w", topic, err)
	}
	return nil
}

func (r *AMQPRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
