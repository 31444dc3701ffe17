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

type SeatService struct {
	repo    repository.SeatLockRepository
	events  *Emitter
	retrier *Retrier
	holdTTL time.Duration
	soldTTL time.Duration

	logger *zap.SugaredLogger
}

func ProvideSeatService(
	repo repository.SeatLockRepository,
	events *Emitter,
	retrier *Retrier,
	cfg *config.Config,
	loggerFactory *infra.LoggerFactory,
) *SeatService {
	return &SeatService{
		repo:    repo,
		events:  events,
		retrier: retrier,
		holdTTL: cfg.SeatHoldTTL,
		soldTTL: cfg.SoldTTL,
		logger:  loggerFactory.Create("SeatLock").Sugar(),
	}
}

// TryReserve: ttl 동안 좌석 선점 (ttl <= 0 이면 설정값). 이번 호출로 선점했을 때만 true.
// 일시적 장애 뒤에는 생성이 이미 됐을 수 있으므로 다음 시도는 소유자를 조회한다.
func (s *SeatService) TryReserve(ctx context.Context, seat repository.SeatKey, userID int64, grade string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	owner := repository.SeatOwner{UserID: userID, Grade: grade}

	var won, uncertain bool
	err := s.retrier.Do(ctx, "reserve", func(ctx context.Context) error {
		if uncertain {
			current, err := s.repo.FindOwnerWithGrade(ctx, seat)
			if err != nil {
				return err
			}
			if current != nil {
				won = *current == owner
				return nil
			}
		}
		ok, err := s.repo.TryReserve(ctx, seat, owner, ttl)
		if repository.IsTransient(err) {
			uncertain = true
		}
		won = ok
		return err
	})

	switch {
	case errors.Is(err, repository.ErrMatchClosed):
		metrics.SeatReserveRequests.WithLabelValues("match_closed").Inc()
		return false, err
	case err != nil:
		metrics.SeatReserveRequests.WithLabelValues("error").Inc()
		s.logger.Errorf("reserve failed seat[%v] user[%v] %v", seat, userID, err)
		return false, err
	case !won:
		metrics.SeatReserveRequests.WithLabelValues("taken").Inc()
		return false, nil
	}

	metrics.SeatReserveRequests.WithLabelValues("ok").Inc()
	s.logger.Debugf("seat held seat[%v] user[%v] grade[%v] ttl[%v]", seat, userID, grade, ttl)
	_ = s.events.Emit(ctx, event.SeatHeld, 0, seat.MatchID, event.SeatPayload{
		SectionID: seat.SectionID,
		RowNumber: seat.RowNumber,
		UserID:    userID,
		Grade:     grade,
	})
	return true, nil
}

func (s *SeatService) FindOwner(ctx context.Context, seat repository.SeatKey) (int64, bool, error) {
	owner, err := s.FindOwnerWithGrade(ctx, seat)
	if err != nil || owner == nil {
		return 0, false, err
	}
	return owner.UserID, true, nil
}

// FindOwnerWithGrade: 빈 좌석이면 nil
func (s *SeatService) FindOwnerWithGrade(ctx context.Context, seat repository.SeatKey) (*repository.SeatOwner, error) {
	var owner *repository.SeatOwner
	err := s.retrier.Do(ctx, "find owner", func(ctx context.Context) error {
		var err error
		owner, err = s.repo.FindOwnerWithGrade(ctx, seat)
		return err
	})
	return owner, err
}

func (s *SeatService) SeatStatus(ctx context.Context, seat repository.SeatKey) (*repository.SeatStatus, error) {
	var status *repository.SeatStatus
	err := s.retrier.Do(ctx, "seat status", func(ctx context.Context) error {
		var err error
		status, err = s.repo.SeatStatus(ctx, seat)
		return err
	})
	return status, err
}

// Release: 선점 해제 또는 판매 취소. 이미 빈 좌석이면 false, 다른 유저 좌석이면 ErrNotOwner
func (s *SeatService) Release(ctx context.Context, seat repository.SeatKey, userID int64) (bool, error) {
	var res repository.ReleaseResult
	err := s.retrier.Do(ctx, "release", func(ctx context.Context) error {
		var err error
		res, err = s.repo.Release(ctx, seat, userID)
		return err
	})

	switch {
	case errors.Is(err, repository.ErrNotOwner):
		metrics.SeatReleaseRequests.WithLabelValues("not_owner").Inc()
		return false, err
	case err != nil:
		metrics.SeatReleaseRequests.WithLabelValues("error").Inc()
		s.logger.Errorf("release failed seat[%v] user[%v] %v", seat, userID, err)
		return false, err
	case !res.Released:
		metrics.SeatReleaseRequests.WithLabelValues("absent").Inc()
		return false, nil
	}

	metrics.SeatReleaseRequests.WithLabelValues("ok").Inc()
	s.logger.Debugf("seat released seat[%v] user[%v] wasSold[%v]", seat, userID, res.WasSold)
	_ = s.events.Emit(ctx, event.SeatReleased, 0, seat.MatchID, event.SeatPayload{
		SectionID: seat.SectionID,
		RowNumber: seat.RowNumber,
		UserID:    res.Owner.UserID,
		Grade:     res.Owner.Grade,
		Reason:    event.ReasonUser,
		WasSold:   res.WasSold,
	})
	return true, nil
}

// ConfirmSale turns the user's hold into a sale. Confirming an already
// sold seat again succeeds, and SEAT_SOLD is emitted every time so a lost
// reply on the first attempt cannot lose the event.
func (s *SeatService) ConfirmSale(ctx context.Context, seat repository.SeatKey, userID int64) (repository.SeatOwner, error) {
	var owner repository.SeatOwner
	var already bool
	err := s.retrier.Do(ctx, "confirm sale", func(ctx context.Context) error {
		var err error
		owner, already, err = s.repo.ConfirmSale(ctx, seat, userID, s.soldTTL)
		return err
	})

	switch {
	case errors.Is(err, repository.ErrNotOwner):
		metrics.SeatConfirmRequests.WithLabelValues("not_owner").Inc()
		return owner, err
	case errors.Is(err, repository.ErrExpired):
		metrics.SeatConfirmRequests.WithLabelValues("expired").Inc()
		return owner, err
	case errors.Is(err, repository.ErrMatchClosed):
		metrics.SeatConfirmRequests.WithLabelValues("match_closed").Inc()
		return owner, err
	case err != nil:
		metrics.SeatConfirmRequests.WithLabelValues("error").Inc()
		s.logger.Errorf("confirm failed seat[%v] user[%v] %v", seat, userID, err)
		return owner, err
	}

	if already {
		metrics.SeatConfirmRequests.WithLabelValues("already_sold").Inc()
	} else {
		metrics.SeatConfirmRequests.WithLabelValues("ok").Inc()
		s.logger.Infof("seat sold seat[%v] user[%v] grade[%v]", seat, userID, owner.Grade)
	}
	_ = s.events.Emit(ctx, event.SeatSold, 0, seat.MatchID, event.SeatPayload{
		SectionID: seat.SectionID,
		RowNumber: seat.RowNumber,
		UserID:    owner.UserID,
		Grade:     owner.Grade,
	})
	return owner, nil
}
