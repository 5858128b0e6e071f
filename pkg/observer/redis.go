package observer

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// ErrRedisPublish wraps failures to publish an occurrence to Redis.
var ErrRedisPublish = errors.New("failed to publish occurrence to redis")

// RedisPublisher is the subset of a Redis client used by the Redis sink.
// redis.UniversalClient satisfies it.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes occurrences as JSON payloads on a Redis pub/sub channel.
type Redis struct {
	client  RedisPublisher
	channel func(occ statemachine.Occurrence) string
}

// RedisOption configures a Redis observer.
type RedisOption func(*Redis)

// WithChannel publishes every occurrence on a fixed channel.
func WithChannel(name string) RedisOption {
	return func(r *Redis) {
		if name != "" {
			r.channel = func(statemachine.Occurrence) string { return name }
		}
	}
}

// WithChannelFunc derives the channel from the occurrence.
func WithChannelFunc(fn func(occ statemachine.Occurrence) string) RedisOption {
	return func(r *Redis) {
		if fn != nil {
			r.channel = fn
		}
	}
}

// DefaultChannel returns "fsm:<machine id>".
func DefaultChannel(occ statemachine.Occurrence) string {
	return "fsm:" + occ.MachineID
}

// NewRedis creates a Redis sink. Occurrences go to DefaultChannel unless an option overrides it.
func NewRedis(client RedisPublisher, opts ...RedisOption) *Redis {
	r := &Redis{client: client, channel: DefaultChannel}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify publishes the JSON payload of occ on the channel chosen for it.
func (r *Redis) Notify(ctx context.Context, occ statemachine.Occurrence) error {
	body, err := NewPayload(occ).Marshal()
	if err != nil {
		return errors.Join(ErrRedisPublish, err)
	}
	channel := r.channel(occ)
	if err := r.client.Publish(ctx, channel, body).Err(); err != nil {
		return errors.Join(ErrRedisPublish, fmt.Errorf("channel %s: %w", channel, err))
	}
	return nil
}
