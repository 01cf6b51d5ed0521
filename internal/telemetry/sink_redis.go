package telemetry

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/relayhq/botgate/internal/domain"
)

// RedisSink appends event batches to a Redis stream for downstream
// consumers.
type RedisSink struct {
	client *redis.Client
	stream string
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a sink writing to the given stream.
func NewRedisSink(addr, stream string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		stream: stream,
	}
}

// Flush implements Sink. The whole batch is pipelined in one round trip.
func (s *RedisSink) Flush(ctx context.Context, events []*domain.LifecycleEvent) error {
	pipe := s.client.Pipeline()
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.ID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"type":  string(event.Type),
				"event": string(payload),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
