package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/market"
	"github.com/samuelvanderwaal/phoenix-sdk/internal/metrics"
)

// RedisStreamSink publishes each event batch onto a Redis stream so
// out-of-process consumers can drain the feed. Entries are appended in
// dispatch order, preserving the poller's ordering guarantee.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	in     <-chan market.EventBatch
	logger *slog.Logger
}

func NewRedisStreamSink(url, stream string, in <-chan market.EventBatch, logger *slog.Logger) (*RedisStreamSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStreamSink{
		client: client,
		stream: stream,
		in:     in,
		logger: logger.With("component", "sink", "sink", "redis", "stream", stream),
	}, nil
}

func (s *RedisStreamSink) Run(ctx context.Context) error {
	s.logger.Info("redis stream sink started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-s.in:
			if !ok {
				return nil
			}
			if err := s.publish(ctx, batch); err != nil {
				metrics.SinkErrors.WithLabelValues("redis").Inc()
				return fmt.Errorf("publish batch %s: %w", batch.Signature, err)
			}
			metrics.SinkBatchesConsumed.WithLabelValues("redis").Inc()
		}
	}
}

func (s *RedisStreamSink) publish(ctx context.Context, batch market.EventBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"batch_id":  batch.BatchID.String(),
			"market":    batch.Market,
			"signature": batch.Signature,
			"slot":      batch.Slot,
			"payload":   payload,
		},
	}).Err()
}

func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}
