package service

import (
	"context"
	"strconv"

	"ticket-queue/config"
	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

// AdmissionController 대기자를 번호표 순서대로 ACTIVE로 입장시킨다.
// 배치 하나가 스크립트 한 번이고 상태로 유저를 확정하므로 동시에 돌거나 재실행돼도 중복 입장이 없다.
type AdmissionController struct {
	repo    repository.QueueRepository
	events  *Emitter
	retrier *Retrier
	batch   int

	logger *zap.SugaredLogger
}

func ProvideAdmissionController(
	repo repository.QueueRepository,
	events *Emitter,
	retrier *Retrier,
	cfg *config.Config,
	loggerFactory *infra.LoggerFactory,
) *AdmissionController {
	return &AdmissionController{
		repo:    repo,
		events:  events,
		retrier: retrier,
		batch:   cfg.AdmitBatch,
		logger:  loggerFactory.Create("Admission").Sugar(),
	}
}

// Admit: 배치가 덜 차서 돌아올 때까지 반복 (방이 꽉 찼거나 대기자가 없음)
func (a *AdmissionController) Admit(ctx context.Context, roomID int64) ([]repository.Admission, error) {
	var admitted []repository.Admission
	for {
		var batch []repository.Admission
		err := a.retrier.Do(ctx, "admit", func(ctx context.Context) error {
			var err error
			batch, err = a.repo.AdmitBatch(ctx, roomID, a.batch)
			return err
		})
		if err != nil {
			a.logger.Errorf("admit failed room[%v] admittedSoFar[%v] %v", roomID, len(admitted), err)
			return admitted, err
		}

		for _, ad := range batch {
			_ = a.events.Emit(ctx, event.UserAdmitted, roomID, 0, event.UserAdmittedPayload{
				UserID:   ad.UserID,
				TicketNo: ad.TicketNo,
			})
		}
		admitted = append(admitted, batch...)

		if len(batch) < a.batch {
			break
		}
	}

	if len(admitted) > 0 {
		metrics.AdmittedUsers.Add(float64(len(admitted)))
		a.logger.Infof("admitted room[%v] count[%v] firstTicket[%v] lastTicket[%v]",
			roomID, len(admitted), admitted[0].TicketNo, admitted[len(admitted)-1].TicketNo)
		a.refreshOccupancy(ctx, roomID)
	}
	return admitted, nil
}

func (a *AdmissionController) refreshOccupancy(ctx context.Context, roomID int64) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		a.logger.Debugf("cannot read room[%v] for occupancy %v", roomID, err)
		return
	}
	metrics.RoomOccupancy.WithLabelValues(strconv.FormatInt(roomID, 10)).Set(float64(room.Occupancy()))
}
