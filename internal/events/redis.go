// Package events delivers ledger events to off-chain consumers.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"zkbridge/internal/domain"
	"zkbridge/internal/metrics"
	"zkbridge/pkg/logger"
)

// DefaultChannel is the Redis channel events are published on.
const DefaultChannel = "bridge:events"

// RedisPublisher queues events and PUBLISHes them from Run. Publish never
// blocks; events are dropped when the queue is full.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	queue   chan domain.Event
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewRedisPublisher(client *redis.Client, channel string, buffer int, log logger.Logger, m *metrics.Metrics) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan domain.Event, buffer),
		logger:  log,
		metrics: m,
	}
}

func (p *RedisPublisher) Publish(_ context.Context, e domain.Event) {
	select {
	case p.queue <- e:
	default:
		p.metrics.EventFailed("redis")
		p.logger.Warn("Event queue full, dropping event", map[string]interface{}{
			"event_id":   e.ID.String(),
			"type":       string(e.Type),
			"request_id": e.RequestID,
		})
	}
}

// Run delivers queued events until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.queue:
			p.send(ctx, e)
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, e domain.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("Failed to encode event", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.metrics.EventFailed("redis")
		p.logger.Error("Failed to publish event", map[string]interface{}{
			"event_id": e.ID.String(),
			"channel":  p.channel,
			"error":    err.Error(),
		})
	}
}

// Subscribe forwards events published on channel to fn until ctx is done.
// Messages that do not decode as events are skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string, fn func(domain.Event)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			fn(e)
		}
	}
}
