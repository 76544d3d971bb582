// Package redis wraps the coordination store's Redis access: a thin layer
// over go-redis exposing exactly the primitives the work queue, rate
// limiter, and watermark tracking need.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps two go-redis connections: a pooled one for ordinary commands
// and a dedicated single-connection one for the blocking BLMOVE used by
// Next(). Sharing a pooled connection for blocking calls would starve other
// callers waiting on the same pool, so the blocking client is kept separate
// with PoolSize 1.
type Client struct {
	rdb      *redis.Client
	blocking *redis.Client
}

// NewClient dials both the pooled and the dedicated blocking connection.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	blockOpts := *opts
	blockOpts.PoolSize = 1
	blockOpts.MinIdleConns = 1
	blocking := redis.NewClient(&blockOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if err := blocking.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect dedicated blocking client: %w", err)
	}

	return &Client{rdb: rdb, blocking: blocking}, nil
}

// Close closes both connections.
func (c *Client) Close() error {
	if err := c.blocking.Close(); err != nil {
		return err
	}
	return c.rdb.Close()
}

// RDB returns the pooled client for non-blocking commands.
func (c *Client) RDB() *redis.Client {
	return c.rdb
}

// Blocking returns the dedicated single-connection client for BLMove.
func (c *Client) Blocking() *redis.Client {
	return c.blocking
}
