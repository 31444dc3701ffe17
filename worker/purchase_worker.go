package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"github.com/go-sql-driver/mysql"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	maxRetries = 3
	dlqGroupID = "seat-events-recovery"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterWriter interface {
	PublishToDLQ(ctx context.Context, topic string, key, value []byte, reason string) error
}

// PurchaseWorker SEAT_SOLD 이벤트를 DB에 저장하고, 판매된 좌석이 해제되면 기록을 삭제.
// 처리 후에만 커밋하므로 장애 시 재전달되고, 중복은 SavePurchase가 무시한다.
type PurchaseWorker struct {
	reader     messageReader
	purchases  repository.PurchaseRepository
	dlq        deadLetterWriter
	brokers    []string
	retryDelay time.Duration

	logger *zap.SugaredLogger
}

func NewPurchaseWorker(brokers []string, groupID string, purchases repository.PurchaseRepository, dlq deadLetterWriter, loggerFactory *infra.LoggerFactory) *PurchaseWorker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    event.TopicSeatEvents,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return newPurchaseWorker(reader, purchases, dlq, brokers, 2*time.Second, loggerFactory)
}

func newPurchaseWorker(reader messageReader, purchases repository.PurchaseRepository, dlq deadLetterWriter, brokers []string, retryDelay time.Duration, loggerFactory *infra.LoggerFactory) *PurchaseWorker {
	return &PurchaseWorker{
		reader:     reader,
		purchases:  purchases,
		dlq:        dlq,
		brokers:    brokers,
		retryDelay: retryDelay,
		logger:     loggerFactory.Create("PurchaseWorker").Sugar(),
	}
}

// Start: ctx가 끝날 때까지 메시지 소비
func (w *PurchaseWorker) Start(ctx context.Context) error {
	w.logger.Infof("purchase worker started topic[%v]", event.TopicSeatEvents)
	defer w.reader.Close()

	for {
		m, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Infof("purchase worker stopped")
				return nil
			}
			w.logger.Errorf("read message failed %v", err)
			// 브로커 장애 시 재시도 전에 대기
			if !w.sleep(ctx) {
				w.logger.Infof("purchase worker stopped")
				return nil
			}
			continue
		}

		w.Handle(ctx, m)

		if err := w.reader.CommitMessages(ctx, m); err != nil {
			w.logger.Errorf("commit failed partition[%v] offset[%v] %v", m.Partition, m.Offset, err)
		}
	}
}

// Handle: 좌석 이벤트 하나를 처리. 실패는 DLQ로 보내고 소비는 계속된다.
func (w *PurchaseWorker) Handle(ctx context.Context, m kafka.Message) {
	e, err := event.Decode(m.Value)
	if err != nil {
		w.logger.Warnf("undecodable message offset[%v] %v", m.Offset, err)
		w.toDLQ(ctx, m, err)
		return
	}

	var p event.SeatPayload
	switch e.EventType {
	case event.SeatSold:
		if err := e.DecodePayload(&p); err != nil {
			w.toDLQ(ctx, m, err)
			return
		}
		w.handleSave(ctx, e.MatchID, p, m)
	case event.SeatReleased:
		if err := e.DecodePayload(&p); err != nil {
			w.toDLQ(ctx, m, err)
			return
		}
		if p.WasSold {
			w.handleCancel(ctx, e.MatchID, p, m)
		}
	}
}

func (w *PurchaseWorker) handleSave(ctx context.Context, matchID int64, p event.SeatPayload, m kafka.Message) {
	purchase := &repository.Purchase{
		MatchID:   matchID,
		SectionID: p.SectionID,
		RowNumber: p.RowNumber,
		UserID:    p.UserID,
		Grade:     p.Grade,
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		saved, err := w.purchases.SavePurchase(purchase)
		if err == nil {
			if !saved {
				w.logger.Warnf("duplicate purchase skipped seat[%v] user[%v]", purchase.Seat(), p.UserID)
			} else {
				metrics.MySQLSaveSuccess.Inc()
				w.logger.Infof("purchase saved seat[%v] user[%v]", purchase.Seat(), p.UserID)
			}
			return
		}

		lastErr = err
		var mysqlErr *mysql.MySQLError
		// 중복 키(1062)는 이미 저장된 것이므로 재시도 없이 종료
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			w.logger.Warnf("duplicate purchase skipped seat[%v] user[%v]", purchase.Seat(), p.UserID)
			return
		}

		// 에러가 오기 전에 insert가 커밋됐을 수 있으므로 존재 여부 확인
		if exists, exErr := w.purchases.ExistsPurchase(purchase.Seat()); exErr == nil && exists {
			w.logger.Warnf("purchase already stored seat[%v] user[%v] after %v", purchase.Seat(), p.UserID, err)
			return
		}

		w.logger.Warnf("save failed seat[%v] user[%v] retry[%v/%v] %v", purchase.Seat(), p.UserID, i+1, maxRetries, err)
		if !w.sleep(ctx) {
			break
		}
	}

	w.logger.Errorf("save gave up seat[%v] user[%v] %v", purchase.Seat(), p.UserID, lastErr)
	w.toDLQ(ctx, m, lastErr)
}

func (w *PurchaseWorker) handleCancel(ctx context.Context, matchID int64, p event.SeatPayload, m kafka.Message) {
	seat := repository.SeatKey{MatchID: matchID, SectionID: p.SectionID, RowNumber: p.RowNumber}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := w.purchases.DeletePurchase(seat, p.UserID)
		if err == nil {
			w.logger.Infof("purchase deleted seat[%v] user[%v]", seat, p.UserID)
			return
		}

		lastErr = err
		w.logger.Warnf("delete failed seat[%v] user[%v] retry[%v/%v] %v", seat, p.UserID, i+1, maxRetries, err)
		if !w.sleep(ctx) {
			break
		}
	}

	w.logger.Errorf("delete gave up seat[%v] user[%v] %v", seat, p.UserID, lastErr)
	w.toDLQ(ctx, m, lastErr)
}

func (w *PurchaseWorker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *PurchaseWorker) toDLQ(ctx context.Context, m kafka.Message, cause error) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	ctx = context.WithoutCancel(ctx)
	if err := w.dlq.PublishToDLQ(ctx, event.TopicSeatDLQ, m.Key, m.Value, reason); err != nil {
		w.logger.Errorf("dlq publish failed offset[%v] %v", m.Offset, err)
	}
}

// ProcessDLQ: DLQ 토픽을 처음부터 다시 처리하고 처리 건수를 반환.
// idle 동안 메시지가 없으면 종료
func (w *PurchaseWorker) ProcessDLQ(ctx context.Context, idle time.Duration) (int, error) {
	if len(w.brokers) == 0 {
		return 0, fmt.Errorf("no brokers configured")
	}
	w.logger.Infof("dlq replay started")

	dlqReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     w.brokers,
		Topic:       event.TopicSeatDLQ,
		GroupID:     dlqGroupID,
		StartOffset: kafka.FirstOffset,
	})
	defer dlqReader.Close()

	count := 0
	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		m, err := dlqReader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			w.logger.Infof("dlq replay done count[%v]", count)
			return count, nil
		}
		w.Handle(ctx, m)
		count++
	}
}
