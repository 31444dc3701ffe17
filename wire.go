//go:build wireinject
// +build wireinject

package main

import (
	"ticket-queue/handler"
	"ticket-queue/infra"
	"ticket-queue/repository"
	"ticket-queue/service"
	"ticket-queue/worker"

	"github.com/google/wire"
)

var repositorySet = wire.NewSet(
	repository.NewRedisRepository,
	wire.Bind(new(repository.QueueRepository), new(*repository.RedisRepository)),
	wire.Bind(new(repository.SeatLockRepository), new(*repository.RedisRepository)),
)

var serviceSet = wire.NewSet(
	service.ProvideRetrier,
	service.ProvideEmitter,
	service.ProvideAdmissionController,
	service.ProvideQueueService,
	service.ProvideSeatService,
	service.ProvideLifecycleService,
	service.ProvidePromoter,
)

var handlerSet = wire.NewSet(
	handler.ProvideQueueHandler,
	handler.ProvideRoomHandler,
	handler.ProvideSeatHandler,
	handler.ProvideServer,
)

func Setup() (*Application, error) {
	wire.Build(
		ProvideConfig,
		ProvideLoggerFactory,
		ProvideRedisOptions,
		infra.ProvideRedisClient,
		ProvideEventPublisher,
		repositorySet,
		serviceSet,
		handlerSet,
		worker.ProvideExpiryListener,
		ProvideApplication,
	)
	return nil, nil
}
