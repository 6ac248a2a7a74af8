// Package notify tells the cache layer which computed availability may be stale.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

type Kind string

const (
	KindSlotsChanged   Kind = "SLOTS_CHANGED"
	KindBookingChanged Kind = "BOOKING_CHANGED"
)

// Scope narrows an invalidation. Empty fields widen it: an empty Date covers every date.
type Scope struct {
	ProviderID string `json:"provider_id,omitempty"`
	ShopID     string `json:"shop_id,omitempty"`
	Date       string `json:"date,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, kind Kind, scope Scope) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Kind, Scope) error { return nil }

type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, kind Kind, scope Scope) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "invalidation",
		slog.String("kind", string(kind)),
		slog.String("provider_id", scope.ProviderID),
		slog.String("shop_id", scope.ShopID),
		slog.String("date", scope.Date),
	)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, kind Kind, scope Scope) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, kind, scope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const slotKeyPrefix = "appointment:slots"

// SlotKey is the cache key for one computed slot list.
func SlotKey(providerID, shopID, date, serviceID string) string {
	return strings.Join([]string{slotKeyPrefix, providerID, shopID, date, serviceID}, ":")
}

// SlotPattern matches every slot key inside scope.
func SlotPattern(scope Scope) string {
	part := func(s string) string {
		if s == "" {
			return "*"
		}
		return s
	}
	return strings.Join([]string{slotKeyPrefix, part(scope.ProviderID), part(scope.ShopID), part(scope.Date), "*"}, ":")
}
