package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "chairbook:invalidations"

type Event struct {
	Kind  Kind      `json:"kind"`
	Scope Scope     `json:"scope"`
	At    time.Time `json:"at"`
}

// Redis drops cached slot lists matching the scope and publishes the event for other subscribers.
type Redis struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

func NewRedis(client redis.UniversalClient, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, now: time.Now}
}

func (r *Redis) Notify(ctx context.Context, kind Kind, scope Scope) error {
	if err := r.evict(ctx, SlotPattern(scope)); err != nil {
		return fmt.Errorf("evict slot cache: %w", err)
	}

	payload, err := json.Marshal(Event{Kind: kind, Scope: scope, At: r.now().UTC()})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (r *Redis) evict(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
