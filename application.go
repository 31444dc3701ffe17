package main

import (
	"context"
	"time"

	"ticket-queue/config"
	"ticket-queue/handler"
	"ticket-queue/infra"
	"ticket-queue/repository"
	"ticket-queue/service"
	"ticket-queue/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Application struct {
	config    *config.Config
	redis     *redis.Client
	publisher repository.EventPublisher
	server    *handler.Server
	promoter  *service.Promoter
	expiry    *worker.ExpiryListener

	loggerFactory *infra.LoggerFactory
	logger        *zap.SugaredLogger
}

func ProvideApplication(
	cfg *config.Config,
	client *redis.Client,
	publisher repository.EventPublisher,
	server *handler.Server,
	promoter *service.Promoter,
	expiry *worker.ExpiryListener,
	loggerFactory *infra.LoggerFactory,
) *Application {
	return &Application{
		config:        cfg,
		redis:         client,
		publisher:     publisher,
		server:        server,
		promoter:      promoter,
		expiry:        expiry,
		loggerFactory: loggerFactory,
		logger:        loggerFactory.Create("Application").Sugar(),
	}
}

// Run: ctx가 끝나거나 서버가 실패할 때까지 실행
func (a *Application) Run(ctx context.Context) error {
	if err := infra.ConfigureKeyspaceEvents(ctx, a.redis, a.config.KeyspaceEvents); err != nil {
		// 관리형 Redis는 CONFIG SET을 막을 수 있음 (그 경우 서버 설정을 따름)
		a.logger.Warnf("cannot enable keyspace events flags[%v] %v", a.config.KeyspaceEvents, err)
	}

	go a.promoter.Run(ctx)
	go a.expiry.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Run()
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorf("server shutdown failed %v", err)
	}
	a.close()
	return nil
}

func (a *Application) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warnf("event publisher close failed %v", err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warnf("redis close failed %v", err)
	}
	_ = a.loggerFactory.Sync()
}
