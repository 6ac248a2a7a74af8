// Package catalog manages the services a shop offers.
package catalog

import (
	"context"
	"errors"
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

const maxServiceDuration = 12 * time.Hour

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
	return &Service{repo: repo, notifier: notifier, metrics: m, log: logger.With("component", "catalog")}
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	if id == uuid.Nil {
		return domain.Service{}, service.Invalid("service_id is required")
	}
	var out domain.Service
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		svc, err := tx.GetService(ctx, id)
		if err != nil {
			return fmt.Errorf("service %s: %w", id, err)
		}
		out = svc
		return nil
	})
	return out, err
}

type UpsertServiceInput struct {
	// ID selects the service to replace; uuid.Nil creates one.
	ID         uuid.UUID
	ShopID     string
	Name       string
	Duration   time.Duration
	PriceCents int64
}

// UpsertService creates or replaces a service. Existing bookings keep the duration and price they
// were made with.
func (s *Service) UpsertService(ctx context.Context, in UpsertServiceInput) (domain.Service, error) {
	shopID := strings.TrimSpace(in.ShopID)
	name := strings.TrimSpace(in.Name)
	switch {
	case shopID == "":
		return domain.Service{}, service.Invalid("shop_id is required")
	case name == "":
		return domain.Service{}, service.Invalid("name is required")
	case in.Duration <= 0:
		return domain.Service{}, service.Invalid("duration must be positive")
	case in.Duration%time.Second != 0:
		return domain.Service{}, service.Invalid("duration must be whole seconds")
	case in.Duration > maxServiceDuration:
		return domain.Service{}, service.Invalid("duration too long")
	case in.PriceCents < 0:
		return domain.Service{}, service.Invalid("price must not be negative")
	}

	var out domain.Service
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetShop(ctx, shopID); err != nil {
			return fmt.Errorf("shop %s: %w", shopID, err)
		}
		if in.ID != uuid.Nil {
			existing, err := tx.GetService(ctx, in.ID)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return err
			case existing.ShopID != shopID:
				return fmt.Errorf("service %s belongs to another shop: %w", in.ID, store.ErrConflict)
			}
		}
		saved, err := tx.UpsertService(ctx, domain.Service{
			ID:              in.ID,
			ShopID:          shopID,
			Name:            name,
			DurationSeconds: int(in.Duration / time.Second),
			PriceCents:      in.PriceCents,
			Active:          true,
		})
		out = saved
		return err
	})
	if err != nil {
		return domain.Service{}, err
	}

	s.log.InfoContext(ctx, "service saved",
		slog.String("service_id", out.ID.String()),
		slog.String("shop_id", out.ShopID),
		slog.Int("duration_seconds", out.DurationSeconds),
	)
	s.notify(ctx, out.ShopID)
	return out, nil
}

// DeactivateService stops new bookings of the service. Deactivating twice is a no-op.
func (s *Service) DeactivateService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	if id == uuid.Nil {
		return domain.Service{}, service.Invalid("service_id is required")
	}

	var (
		out     domain.Service
		changed bool
	)
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		svc, err := tx.GetService(ctx, id)
		if err != nil {
			return fmt.Errorf("service %s: %w", id, err)
		}
		if !svc.Active {
			out = svc
			return nil
		}
		svc.Active = false
		out, err = tx.UpsertService(ctx, svc)
		changed = err == nil
		return err
	})
	if err != nil {
		return domain.Service{}, err
	}
	if changed {
		s.notify(ctx, out.ShopID)
	}
	return out, nil
}

func (s *Service) notify(ctx context.Context, shopID string) {
	if err := s.notifier.Notify(ctx, notify.KindSlotsChanged, notify.Scope{ShopID: shopID}); err != nil {
		s.metrics.ObserveNotifyFailure(string(notify.KindSlotsChanged))
		s.log.WarnContext(ctx, "invalidation failed", slog.String("shop_id", shopID), slog.Any("err", err))
	}
}
