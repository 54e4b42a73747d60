// Package redis 提供查询向量缓存、API 限流、索引构建锁以及任务流共用的 Redis 连接
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chem-rag-api/internal/config"
)

var tracer = otel.Tracer("redis")

// clientName 在 CLIENT LIST 中标识本服务的连接
const clientName = "chem-rag-api"

// Client Redis 连接，api-gateway 与 job-worker 各持有一个
type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient 建立连接并 PING，连接超时沿用 dial_timeout
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Client{rdb: rdb, addr: addr}, nil
}

// Redis 底层客户端，供任务流生产者与消费者使用
func (c *Client) Redis() *redis.Client { return c.rdb }

// Addr 连接地址
func (c *Client) Addr() string { return c.addr }

// Close 关闭连接池
func (c *Client) Close() error { return c.rdb.Close() }

// HealthCheck 就绪检查，Redis 故障时网关降级运行
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()
	span.SetAttributes(attribute.String("redis.addr", c.addr))

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

// IsNil 是否为键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
