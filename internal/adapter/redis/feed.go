// Package redis backs the passive feed with a Redis list so several
// producers can queue raw reports for the agent.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/config"
	"github.com/Mathew005/aura-agent/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// listClient is the subset of the Redis client the feed uses.
type listClient interface {
	LPush(ctx context.Context, key string, values ...any) *goredis.IntCmd
	RPop(ctx context.Context, key string) *goredis.StringCmd
	LLen(ctx context.Context, key string) *goredis.IntCmd
}

// Feed is a FIFO of raw reports: producers LPUSH JSON items and the agent
// RPOPs them. It implements the pipeline feed contract.
type Feed struct {
	client listClient
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// NewFeed creates a feed over the list at key.
func NewFeed(client *goredis.Client, key string, logger *slog.Logger) *Feed {
	return newFeed(client, key, logger)
}

func newFeed(client listClient, key string, logger *slog.Logger) *Feed {
	return &Feed{client: client, key: key, logger: logger, now: time.Now}
}

// Enqueue appends an item to the tail of the queue.
func (f *Feed) Enqueue(ctx context.Context, item domain.Item) error {
	if strings.TrimSpace(item.Text) == "" {
		return errors.New("report text is empty")
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := f.client.LPush(ctx, f.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue report: %w", err)
	}
	return nil
}

// Next pops the oldest item without blocking.
func (f *Feed) Next(ctx context.Context) (domain.Item, bool, error) {
	raw, err := f.client.RPop(ctx, f.key).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("pop report: %w", err)
	}

	var item domain.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		// Producers may push bare text.
		item = domain.Item{Text: raw}
	}
	item.Text = strings.TrimSpace(item.Text)
	if item.Text == "" {
		f.logger.Warn("skipping empty report", "key", f.key)
		return domain.Item{}, false, nil
	}
	if item.Source == "" {
		item.Source = "Redis (" + f.key + ")"
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = f.now()
	}
	return item, true, nil
}

// Len returns the queue length.
func (f *Feed) Len(ctx context.Context) (int64, error) {
	n, err := f.client.LLen(ctx, f.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
