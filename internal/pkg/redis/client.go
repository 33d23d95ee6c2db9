// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 的 UniversalClient：单地址走普通模式，
// 多地址自动切到 Cluster 模式。
type Client struct {
	rdb goredis.UniversalClient
}

// NewClient 创建并探活一个 redis 客户端。addrs 格式 "host1:port1,host2:port2"。
func NewClient(addrs string) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to ping redis")
	}
	return &Client{rdb: rdb}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.rdb
}

// ClaimOnce 用 SETNX 抢占一个一次性令牌。返回 true 表示本次调用是第一个
// 抢到的。事件消费者用它来去重 at-least-once 投递。
func (c *Client) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim key %s", key)
	}
	return ok, nil
}

// ReleaseClaim 释放令牌，让失败的处理可以被重投递重新执行。
func (c *Client) ReleaseClaim(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
