package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// ProvideRedisClient: 연결 후 한 번 ping.
// 클라이언트 자체 재시도는 끄고, 재시도는 서비스 계층의 backoff에 맡긴다.
func ProvideRedisClient(opts RedisOptions, loggerFactory *LoggerFactory) (*redis.Client, error) {
	logger := loggerFactory.Create("RedisClient").Sugar()

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.PoolSize / 10,
		MaxRetries:   -1,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Debugf("redis connected to host[%v] db[%v]", opts.Addr, opts.DB)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Errorf("redis ping failed host[%v] %v", opts.Addr, err)
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	logger.Infof("redis ready host[%v] db[%v] poolSize[%v]", opts.Addr, opts.DB, opts.PoolSize)
	return client, nil
}

// ConfigureKeyspaceEvents: 만료 알림을 켜서 선점 만료를 감지할 수 있게 한다. 시작 시 한 번 실행
func ConfigureKeyspaceEvents(ctx context.Context, client *redis.Client, flags string) error {
	if flags == "" {
		return nil
	}
	return client.ConfigSet(ctx, "notify-keyspace-events", flags).Err()
}
