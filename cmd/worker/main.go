package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-queue/config"
	"ticket-queue/infra"
	"ticket-queue/repository"
	"ticket-queue/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	replayDLQ := pflag.Bool("replay-dlq", false, "replay the seat events dead letter topic once and exit")
	idle := pflag.Duration("dlq-idle", 3*time.Second, "stop the replay after this long without messages")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed %v", err)
	}
	loggerFactory := infra.ProvideLoggerFactory(cfg.LogLevel)
	defer loggerFactory.Sync()
	logger := loggerFactory.Create("WorkerMain").Sugar()

	if cfg.EventBus != "kafka" {
		logger.Fatalf("purchase worker consumes kafka only, EVENT_BUS[%v]", cfg.EventBus)
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{})
	if err != nil {
		logger.Fatalf("db connect failed %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("db pool setup failed %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	purchaseRepo := repository.NewMySQLRepository(db)
	if err := purchaseRepo.Migrate(); err != nil {
		logger.Fatalf("migrate failed %v", err)
	}

	kafkaRepo := repository.NewKafkaRepository(cfg.KafkaBrokers)
	defer kafkaRepo.Close()

	pWorker := worker.NewPurchaseWorker(cfg.KafkaBrokers, cfg.SeatEventsGroup, purchaseRepo, kafkaRepo, loggerFactory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *replayDLQ {
		n, err := pWorker.ProcessDLQ(ctx, *idle)
		if err != nil {
			logger.Fatalf("dlq replay failed %v", err)
		}
		logger.Infof("dlq replay handled messages[%v]", n)
		return
	}

	metricsServer := &http.Server{Addr: fmt.Sprintf(":%v", cfg.MetricsPort), Handler: promhttp.Handler()}
	go func() {
		logger.Infof("metrics server listening addr[%v]", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed %v", err)
		}
	}()

	if err := pWorker.Start(ctx); err != nil {
		logger.Errorf("worker stopped %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
