package service

import (
	"context"
	"time"

	"ticket-queue/config"
	"ticket-queue/infra"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

// Promoter 주기적으로 모든 방의 입장 처리를 다시 돌려서 장애로 놓친 입장을 복구
type Promoter struct {
	repo      repository.QueueRepository
	admission *AdmissionController
	interval  time.Duration

	logger *zap.SugaredLogger
}

func ProvidePromoter(repo repository.QueueRepository, admission *AdmissionController, cfg *config.Config, loggerFactory *infra.LoggerFactory) *Promoter {
	return &Promoter{
		repo:      repo,
		admission: admission,
		interval:  cfg.PromoteInterval,
		logger:    loggerFactory.Create("Promoter").Sugar(),
	}
}

// Run: ctx가 끝날 때까지 interval마다 실행
func (p *Promoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Infof("promoter started interval[%v]", p.interval)

	for {
		select {
		case <-ticker.C:
			p.PromoteAll(ctx)
		case <-ctx.Done():
			p.logger.Infof("promoter stopped")
			return
		}
	}
}

// PromoteAll: 방마다 한 번씩 입장 처리하고 전체 입장 인원을 반환
func (p *Promoter) PromoteAll(ctx context.Context) int {
	rooms, err := p.repo.ListRooms(ctx)
	if err != nil {
		p.logger.Errorf("cannot list rooms %v", err)
		return 0
	}

	total := 0
	for _, roomID := range rooms {
		if ctx.Err() != nil {
			break
		}
		admitted, err := p.admission.Admit(ctx, roomID)
		if err != nil {
			p.logger.Warnf("promote failed room[%v] %v", roomID, err)
		}
		total += len(admitted)
	}
	if total > 0 {
		p.logger.Infof("promoted users[%v] rooms[%v]", total, len(rooms))
	}
	return total
}
