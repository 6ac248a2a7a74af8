// Package cache keeps computed slot lists in Redis. Entries are dropped by notify.Redis when the
// inputs behind them change, and expire after a short TTL regardless.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/metrics"
	"chairbook/backend/internal/notify"
	"chairbook/backend/internal/service/booking"
)

const DefaultSlotTTL = 5 * time.Minute

// earliestZone is where a calendar date ends first.
var earliestZone = time.FixedZone("UTC+14", 14*60*60)

type SlotSource interface {
	AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error)
}

// Slots is a read-through SlotSource. Redis failures degrade to the wrapped source.
type Slots struct {
	client  redis.UniversalClient
	source  SlotSource
	ttl     time.Duration
	metrics *metrics.BookingMetrics
	log     *slog.Logger
	now     func() time.Time
}

func NewSlots(client redis.UniversalClient, source SlotSource, ttl time.Duration, m *metrics.BookingMetrics, logger *slog.Logger) *Slots {
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Slots{
		client:  client,
		source:  source,
		ttl:     ttl,
		metrics: m,
		log:     logger.With("component", "slot_cache"),
		now:     time.Now,
	}
}

func (c *Slots) AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error) {
	key := notify.SlotKey(q.ProviderID, q.ShopID, q.Date, q.ServiceID.String())

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []time.Time
		if err := json.Unmarshal(raw, &cached); err == nil {
			c.metrics.ObserveSlotCache(true)
			return c.upcoming(cached), nil
		}
		c.log.WarnContext(ctx, "discarding corrupt slot entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "slot cache read failed", slog.String("key", key), slog.Any("err", err))
	}
	c.metrics.ObserveSlotCache(false)

	out, err := c.source.AvailableSlots(ctx, q)
	if err != nil {
		return nil, err
	}

	ttl := c.ttlFor(q.Date, out)
	if ttl <= 0 {
		return out, nil
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "slot cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return out, nil
}

// ttlFor caps the entry's lifetime at the end of its date so a date that has passed is always
// re-validated by the source. Slots carry the shop's location; an empty list assumes the zone
// where the date ends first.
func (c *Slots) ttlFor(date string, slots []time.Time) time.Duration {
	loc := earliestZone
	if len(slots) > 0 {
		loc = slots[0].Location()
	}
	day, err := domain.ParseDate(date, loc)
	if err != nil {
		return 0
	}
	end := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	if left := end.Sub(c.now()); left < c.ttl {
		return left
	}
	return c.ttl
}

// upcoming drops slots that started since the entry was cached.
func (c *Slots) upcoming(in []time.Time) []time.Time {
	now := c.now()
	out := make([]time.Time, 0, len(in))
	for _, t := range in {
		if !t.Before(now) {
			out = append(out, t)
		}
	}
	return out
}
