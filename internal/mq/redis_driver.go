// Redis-streams-backed Reliable driver. Grounded on original_source's
// MessageSystem wiring a RedisStreamDriver for MessageQoS::Reliable; the
// consumer-loop shape (blocking XREAD, "$" starting cursor, batch size)
// comes directly from spec §6's "Redis stream with $ starting cursor,
// 100ms block, 10-item batch" line. go-redis/v9 is not part of the
// teacher's stack; no pack repo imports any Redis client, and the spec
// explicitly names Redis streams as the Reliable backend, so this is an
// ecosystem addition rather than a teacher-grounded one.
package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisBlockDuration = 100 * time.Millisecond
	redisBatchSize     = 10
)

// RedisStreamDriver is the Reliable-QoS MessageDriver: each Subscribe
// starts its own blocking-XREAD consumer loop over a Redis stream.
type RedisStreamDriver struct {
	client *redis.Client
	logger zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRedisStreamDriver parses url (a redis:// connection string) and
// verifies connectivity with a Ping.
func NewRedisStreamDriver(url string, logger zerolog.Logger) (*RedisStreamDriver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStreamDriver{
		client:  client,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Publish appends message to the stream named topic via XADD.
func (d *RedisStreamDriver) Publish(topic string, message []byte) error {
	ctx := context.Background()
	return d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"data": message},
	}).Err()
}

// Subscribe starts a consumer goroutine that blocks on XREAD for new
// entries, starting from the stream's current tail ("$"), delivering up
// to redisBatchSize entries per wakeup.
func (d *RedisStreamDriver) Subscribe(topic string, h Handler) error {
	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.cancels[topic] = cancel
	d.mu.Unlock()

	go d.consumeLoop(ctx, topic, h)
	return nil
}

func (d *RedisStreamDriver) consumeLoop(ctx context.Context, topic string, h Handler) {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := d.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{topic, lastID},
			Count:   redisBatchSize,
			Block:   redisBlockDuration,
		}).Result()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				continue
			}
			d.logger.Warn().Err(err).Str("topic", topic).Msg("redis stream read failed, backing off")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if data, ok := msg.Values["data"].(string); ok {
					h(topic, []byte(data))
				}
			}
		}
	}
}

// Healthy reports whether the Redis connection currently responds to Ping.
func (d *RedisStreamDriver) Healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.client.Ping(ctx).Err() == nil
}

// Close cancels every consumer loop and closes the client connection.
func (d *RedisStreamDriver) Close() error {
	d.mu.Lock()
	for _, cancel := range d.cancels {
		cancel()
	}
	d.mu.Unlock()
	return d.client.Close()
}
