package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// ErrLockTimeout 等待期内未能获得锁
var ErrLockTimeout = errors.New("redis: lock wait timeout")

// 仅删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockPollInterval = 100 * time.Millisecond

// BuildLock 基于 SET NX PX 的跨进程索引构建锁，同一 file_id 同时只有一个写入方
type BuildLock struct {
	client *Client
	ttl    time.Duration
	wait   time.Duration
}

// NewBuildLock 创建构建锁
func NewBuildLock(client *Client, ttl, wait time.Duration) *BuildLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if wait < 0 {
		wait = 0
	}
	return &BuildLock{client: client, ttl: ttl, wait: wait}
}

// BuildLockKey 构建锁的键
func BuildLockKey(fileID string) string {
	return fmt.Sprintf("lock:index_build:%s", fileID)
}

// Acquire 获取 fileID 的构建锁，返回的 release 幂等
func (l *BuildLock) Acquire(ctx context.Context, fileID string) (func(), error) {
	ctx, span := tracer.Start(ctx, "lock.Acquire")
	defer span.End()
	key := BuildLockKey(fileID)
	span.SetAttributes(attribute.String("lock.key", key))

	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("acquire build lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			span.SetAttributes(attribute.Bool("lock.acquired", false))
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
	span.SetAttributes(attribute.Bool("lock.acquired", true))

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// 调用方 ctx 可能已取消，释放使用独立超时
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client.rdb, []string{key}, token).Err()
	}, nil
}
