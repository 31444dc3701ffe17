package service

import (
	"context"
	"errors"
	"time"

	"ticket-queue/config"
	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

// LifecycleService 매치 종료 시 정리 담당
type LifecycleService struct {
	queue   repository.QueueRepository
	seats   repository.SeatLockRepository
	events  *Emitter
	retrier *Retrier
	batch   int

	closedTTL time.Duration

	logger *zap.SugaredLogger
}

func ProvideLifecycleService(
	queue repository.QueueRepository,
	seats repository.SeatLockRepository,
	events *Emitter,
	retrier *Retrier,
	cfg *config.Config,
	loggerFactory *infra.LoggerFactory,
) *LifecycleService {
	return &LifecycleService{
		queue:   queue,
		seats:   seats,
		events:  events,
		retrier: retrier,
		batch:   cfg.AdmitBatch,

		closedTTL: cfg.MatchClosedTTL,
		logger:    loggerFactory.Create("Lifecycle").Sugar(),
	}
}

// MatchEndResult 정리된 좌석 수와 퇴장 인원
type MatchEndResult struct {
	ReleasedSeats int
	LeftUsers     int
}

// OnMatchEnd: 매치 종료 처리. 두 번 실행해도 안전하다.
// 1. 매치를 닫아서 새 선점을 막음
// 2. HELD 좌석을 모두 해제 (SOLD는 유지)
// 3. 대기열에 남은 유저를 모두 LEFT로 이동
// sweep 전에 닫으므로 경합한 선점은 sweep에 걸리거나 ErrMatchClosed로 실패한다.
func (s *LifecycleService) OnMatchEnd(ctx context.Context, matchID, roomID int64) (*MatchEndResult, error) {
	s.logger.Infof("match end started match[%v] room[%v]", matchID, roomID)

	if err := s.retrier.Do(ctx, "close match", func(ctx context.Context) error {
		return s.seats.CloseMatch(ctx, matchID, s.closedTTL)
	}); err != nil {
		return nil, err
	}

	result := &MatchEndResult{}
	err := s.retrier.DoLong(ctx, "sweep seats", func(ctx context.Context) error {
		_, err := s.seats.SweepHeld(ctx, matchID, func(seat repository.SeatKey, owner repository.SeatOwner) {
			result.ReleasedSeats++
			_ = s.events.Emit(ctx, event.SeatReleased, roomID, matchID, event.SeatPayload{
				SectionID: seat.SectionID,
				RowNumber: seat.RowNumber,
				UserID:    owner.UserID,
				Grade:     owner.Grade,
				Reason:    event.ReasonMatchEnd,
			})
		})
		return err
	})
	if err != nil {
		return result, err
	}

	var prev repository.RoomState
	err = s.retrier.Do(ctx, "end room", func(ctx context.Context) error {
		var err error
		prev, err = s.queue.SetRoomState(ctx, roomID, repository.RoomEnded)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		// 대기열 없는 매치
		s.logger.Warnf("match end without room match[%v] room[%v]", matchID, roomID)
	case err != nil:
		return result, err
	default:
		left, err := s.closeQueue(ctx, roomID)
		result.LeftUsers = left
		if err != nil {
			return result, err
		}
	}

	if prev == repository.RoomPlaying {
		_ = s.events.Emit(ctx, event.RoomPlayingEnded, roomID, matchID, event.RoomPlayingPayload{State: string(repository.RoomEnded)})
	}
	_ = s.events.Emit(ctx, event.MatchEnded, roomID, matchID, event.MatchEndedPayload{
		ReleasedSeats: result.ReleasedSeats,
		LeftUsers:     result.LeftUsers,
	})

	if prev != "" {
		if err := s.queue.ForgetRoom(ctx, roomID); err != nil {
			s.logger.Warnf("cannot drop room[%v] from promoter index %v", roomID, err)
		}
	}

	s.logger.Infof("match end done match[%v] room[%v] releasedSeats[%v] leftUsers[%v]",
		matchID, roomID, result.ReleasedSeats, result.LeftUsers)
	return result, nil
}

func (s *LifecycleService) closeQueue(ctx context.Context, roomID int64) (int, error) {
	total := 0
	for {
		var processed int
		var left []int64
		err := s.retrier.Do(ctx, "close queue", func(ctx context.Context) error {
			var err error
			processed, left, err = s.queue.CloseQueue(ctx, roomID, s.batch)
			return err
		})
		if err != nil {
			return total, err
		}
		total += len(left)
		metrics.LeftUsers.WithLabelValues("MATCH_END").Add(float64(len(left)))

		if processed < s.batch {
			return total, nil
		}
	}
}
