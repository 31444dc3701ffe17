package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
)

type RedisRepository struct {
	Client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{Client: client}
}

// 잠시 후 재시도하면 되는 서버 응답
var transientReplies = []string{"LOADING", "READONLY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "BUSY "}

func isTransientStoreErr(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "pool timeout") {
		return true
	}
	for _, p := range transientReplies {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

// storeErr: 일시적 장애는 ErrStoreUnavailable로 감싼다
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransientStoreErr(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected lua script result %T(%v)", v, v)
	}
}

func toSlice(v interface{}) ([]interface{}, error) {
	res, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected lua script result format %T", v)
	}
	return res, nil
}
