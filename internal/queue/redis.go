package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStream is a Queue backed by a Redis stream read through a consumer
// group, so several worker processes share the load.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	group  string
	logger *slog.Logger
}

func NewRedisStream(rdb *redis.Client, stream, group string, logger *slog.Logger) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, group: group, logger: logger}
}

func (q *RedisStream) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing slot %d: %w", job.SlotID, err)
	}
	return nil
}

func (q *RedisStream) ensureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s: %w", q.group, err)
	}
	return nil
}

func (q *RedisStream) Consume(ctx context.Context, consumer string, h Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	for {
		res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			q.logger.Warn("xreadgroup", "stream", q.stream, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, str := range res {
			for _, msg := range str.Messages {
				q.handle(ctx, consumer, msg, h)
			}
		}
	}
}

func (q *RedisStream) handle(ctx context.Context, consumer string, msg redis.XMessage, h Handler) {
	defer func() {
		if err := q.rdb.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
			q.logger.Warn("xack", "id", msg.ID, "error", err)
		}
	}()

	raw, _ := msg.Values["data"].(string)
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Warn("dropping malformed job", "id", msg.ID, "error", err)
		return
	}
	if err := h(ctx, job); err != nil {
		q.logger.Warn("job failed", "consumer", consumer, "slot_id", job.SlotID, "version", job.Version, "error", err)
	}
}
