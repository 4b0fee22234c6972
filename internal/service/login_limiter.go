package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter 按邮箱统计登录失败次数
type LoginLimiter interface {
	Allowed(ctx context.Context, email string) (bool, error)
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type redisLoginLimiter struct {
	rdb         redis.Cmdable
	maxFailures int64
	window      time.Duration
}

// NewRedisLoginLimiter maxFailures <= 0 时不限制
func NewRedisLoginLimiter(rdb redis.Cmdable, maxFailures int64, window time.Duration) LoginLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &redisLoginLimiter{rdb: rdb, maxFailures: maxFailures, window: window}
}

func loginFailKey(email string) string {
	return "login:fail:" + strings.ToLower(email)
}

func (l *redisLoginLimiter) Allowed(ctx context.Context, email string) (bool, error) {
	if l.maxFailures <= 0 {
		return true, nil
	}
	n, err := l.rdb.Get(ctx, loginFailKey(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return n < l.maxFailures, nil
}

func (l *redisLoginLimiter) Fail(ctx context.Context, email string) error {
	key := loginFailKey(email)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	// 窗口从第一次失败开始计算
	if n == 1 {
		return l.rdb.Expire(ctx, key, l.window).Err()
	}
	return nil
}

func (l *redisLoginLimiter) Reset(ctx context.Context, email string) error {
	return l.rdb.Del(ctx, loginFailKey(email)).Err()
}

type noopLoginLimiter struct{}

// NewNoopLoginLimiter 未配置 Redis 时使用
func NewNoopLoginLimiter() LoginLimiter { return noopLoginLimiter{} }

func (noopLoginLimiter) Allowed(context.Context, string) (bool, error) { return true, nil }
func (noopLoginLimiter) Fail(context.Context, string) error            { return nil }
func (noopLoginLimiter) Reset(context.Context, string) error           { return nil }
