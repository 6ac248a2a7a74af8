// Package availability manages providers' weekly availability templates.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/metrics"
	"chairbook/backend/internal/notify"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/store"
)

type Service struct {
	repo     store.Repository
	notifier notify.Notifier
	metrics  *metrics.BookingMetrics
	log      *slog.Logger
}

func NewService(repo store.Repository, notifier notify.Notifier, m *metrics.BookingMetrics, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, metrics: m, log: logger.With("component", "availability")}
}

// GetWindows returns the provider's active windows for weekday ordered by start. An empty result
// means the provider does not work that day.
func (s *Service) GetWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, service.Invalid("provider_id is required")
	}
	if !domain.ValidWeekday(weekday) {
		return nil, service.Invalid("invalid weekday")
	}

	var out []domain.AvailabilityWindow
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetProvider(ctx, providerID); err != nil {
			return fmt.Errorf("provider %s: %w", providerID, err)
		}
		rows, err := tx.ListWindows(ctx, providerID, weekday)
		out = rows
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type UpsertWindowInput struct {
	// ID selects the window to update; uuid.Nil inserts a new one.
	ID         uuid.UUID
	ProviderID string
	ShopID     string
	Weekday    time.Weekday
	Start      domain.Clock
	End        domain.Clock
}

// UpsertWindow inserts or replaces a window. Active windows of one provider never overlap on a
// weekday, whichever shop they belong to.
func (s *Service) UpsertWindow(ctx context.Context, in UpsertWindowInput) (domain.AvailabilityWindow, error) {
	providerID := strings.TrimSpace(in.ProviderID)
	shopID := strings.TrimSpace(in.ShopID)
	switch {
	case providerID == "":
		return domain.AvailabilityWindow{}, service.Invalid("provider_id is required")
	case shopID == "":
		return domain.AvailabilityWindow{}, service.Invalid("shop_id is required")
	case !domain.ValidWeekday(in.Weekday):
		return domain.AvailabilityWindow{}, service.Invalid("invalid weekday")
	case !in.Start.Valid() || !in.End.Valid():
		return domain.AvailabilityWindow{}, service.Invalid("invalid time of day")
	case in.Start >= in.End:
		return domain.AvailabilityWindow{}, service.Invalid("start must be before end")
	}

	want := domain.AvailabilityWindow{
		ID:         in.ID,
		ProviderID: providerID,
		ShopID:     shopID,
		Weekday:    in.Weekday,
		Start:      in.Start,
		End:        in.End,
		Active:     true,
	}

	var (
		out      domain.AvailabilityWindow
		previous *domain.AvailabilityWindow
	)
	err := s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.Tx) error {
		if err := checkWorksAt(ctx, tx, providerID, shopID); err != nil {
			return err
		}

		if want.ID != uuid.Nil {
			existing, err := tx.GetWindow(ctx, want.ID)
			if err != nil {
				return fmt.Errorf("window %s: %w", want.ID, err)
			}
			if existing.ProviderID != providerID {
				return fmt.Errorf("window %s: %w", want.ID, store.ErrNotFound)
			}
			previous = &existing
		}

		others, err := tx.ListWindows(ctx, providerID, want.Weekday)
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID != want.ID && o.Overlaps(want) {
				return fmt.Errorf("%s %s-%s: %w", o.Weekday, o.Start, o.End, store.ErrOverlap)
			}
		}

		if previous == nil {
			out, err = tx.InsertWindow(ctx, want)
		} else {
			want.CreatedAt = previous.CreatedAt
			out, err = tx.UpdateWindow(ctx, want)
		}
		return err
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	s.log.InfoContext(ctx, "availability window saved",
		slog.String("window_id", out.ID.String()),
		slog.String("provider_id", out.ProviderID),
		slog.String("weekday", out.Weekday.String()),
	)
	s.notify(ctx, notify.Scope{ProviderID: providerID, ShopID: shopID})
	if previous != nil && previous.ShopID != shopID {
		s.notify(ctx, notify.Scope{ProviderID: providerID, ShopID: previous.ShopID})
	}
	return out, nil
}

// DeactivateWindow soft-deletes a window. Deactivating an inactive window is a no-op.
func (s *Service) DeactivateWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error) {
	if id == uuid.Nil {
		return domain.AvailabilityWindow{}, service.Invalid("window_id is required")
	}

	var (
		out     domain.AvailabilityWindow
		changed bool
	)
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWindow(ctx, id)
		if err != nil {
			return fmt.Errorf("window %s: %w", id, err)
		}
		if !w.Active {
			out = w
			return nil
		}
		w.Active = false
		out, err = tx.UpdateWindow(ctx, w)
		changed = err == nil
		return err
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	if changed {
		s.notify(ctx, notify.Scope{ProviderID: out.ProviderID, ShopID: out.ShopID})
	}
	return out, nil
}

func checkWorksAt(ctx context.Context, tx store.Tx, providerID, shopID string) error {
	if _, err := tx.GetProvider(ctx, providerID); err != nil {
		return fmt.Errorf("provider %s: %w", providerID, err)
	}
	if _, err := tx.GetShop(ctx, shopID); err != nil {
		return fmt.Errorf("shop %s: %w", shopID, err)
	}
	ok, err := tx.IsMember(ctx, providerID, shopID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("provider %s at shop %s: %w", providerID, shopID, store.ErrNotFound)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, scope notify.Scope) {
	if err := s.notifier.Notify(ctx, notify.KindSlotsChanged, scope); err != nil {
		s.metrics.ObserveNotifyFailure(string(notify.KindSlotsChanged))
		s.log.WarnContext(ctx, "invalidation failed",
			slog.String("provider_id", scope.ProviderID),
			slog.String("shop_id", scope.ShopID),
			slog.Any("err", err),
		)
	}
}
