package main

import (
	"fmt"

	"ticket-queue/config"
	"ticket-queue/infra"
	"ticket-queue/repository"
)

func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

func ProvideLoggerFactory(cfg *config.Config) *infra.LoggerFactory {
	return infra.ProvideLoggerFactory(cfg.LogLevel)
}

func ProvideRedisOptions(cfg *config.Config) infra.RedisOptions {
	return infra.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	}
}

// ProvideEventPublisher: EVENT_BUS 설정에 따라 kafka 또는 rabbitmq 선택
func ProvideEventPublisher(cfg *config.Config, loggerFactory *infra.LoggerFactory) (repository.EventPublisher, error) {
	logger := loggerFactory.Create("EventBus").Sugar()

	switch cfg.EventBus {
	case "kafka":
		logger.Infof("publishing to kafka brokers[%v]", cfg.KafkaBrokers)
		return repository.NewKafkaRepository(cfg.KafkaBrokers), nil
	case "amqp":
		r, err := repository.NewAMQPRepository(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		logger.Infof("publishing to rabbitmq")
		return r, nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus)
	}
}
