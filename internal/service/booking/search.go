package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/conflicts"
	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/store"
)

type NextSlotQuery struct {
	// ProviderID restricts the search to one provider; empty searches every provider at the shop.
	ProviderID string
	ShopID     string
	ServiceID  uuid.UUID
	// From is the first calendar date searched, in the shop's timezone. Empty means today.
	From string
}

type ProviderSlot struct {
	ProviderID string
	Start      time.Time
}

// NextAvailableSlot returns the earliest bookable start within the policy's search horizon.
// Ties between providers go to the lowest provider id. It fails with ErrSlotUnavailable when
// nothing is free.
func (s *Service) NextAvailableSlot(ctx context.Context, q NextSlotQuery) (out ProviderSlot, err error) {
	ctx, finish := s.startSpan(ctx, "next_available_slot")
	defer func() { finish(err) }()

	providerID := strings.TrimSpace(q.ProviderID)
	switch {
	case strings.TrimSpace(q.ShopID) == "":
		return ProviderSlot{}, service.Invalid("shop_id is required")
	case q.ServiceID == uuid.Nil:
		return ProviderSlot{}, service.Invalid("service_id is required")
	}

	found := false
	err = s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		shop, svc, err := s.searchTarget(ctx, tx, providerID, q.ShopID, q.ServiceID)
		if err != nil {
			return err
		}
		providers, err := s.candidates(ctx, tx, providerID, q.ShopID)
		if err != nil {
			return err
		}

		loc := shop.Location()
		day, err := s.startDate(q.From, loc)
		if err != nil {
			return err
		}
		for i := 0; i < s.policy.SearchHorizonDays; i++ {
			date := time.Date(day.Year(), day.Month(), day.Day()+i, 0, 0, 0, 0, loc)
			for _, p := range providers {
				free, err := s.freeSlots(ctx, tx, p, q.ShopID, date, loc, svc.Duration())
				if err != nil {
					return err
				}
				if len(free) > 0 && (!found || free[0].Before(out.Start)) {
					out = ProviderSlot{ProviderID: p, Start: free[0]}
					found = true
				}
			}
			if found {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return ProviderSlot{}, err
	}
	if !found {
		return ProviderSlot{}, fmt.Errorf("nothing free within %d days: %w", s.policy.SearchHorizonDays, store.ErrSlotUnavailable)
	}
	return out, nil
}

type ShopSlotsQuery struct {
	ShopID    string
	ServiceID uuid.UUID
	// Date is a calendar date (YYYY-MM-DD) in the shop's timezone.
	Date string
}

type ProviderSlots struct {
	ProviderID string
	Slots      []time.Time
}

// ShopSlots lists, per provider working at the shop, the free start times for the service on the
// date. Providers with nothing free are left out.
func (s *Service) ShopSlots(ctx context.Context, q ShopSlotsQuery) (out []ProviderSlots, err error) {
	ctx, finish := s.startSpan(ctx, "shop_slots")
	defer func() { finish(err) }()

	switch {
	case strings.TrimSpace(q.ShopID) == "":
		return nil, service.Invalid("shop_id is required")
	case q.ServiceID == uuid.Nil:
		return nil, service.Invalid("service_id is required")
	}

	err = s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		shop, svc, err := loadShopService(ctx, tx, q.ShopID, q.ServiceID)
		if err != nil {
			return err
		}
		loc := shop.Location()
		day, err := domain.ParseDate(q.Date, loc)
		if err != nil {
			return service.Invalid("date must be YYYY-MM-DD")
		}
		providers, err := s.candidates(ctx, tx, "", q.ShopID)
		if err != nil {
			return err
		}

		out = nil
		for _, p := range providers {
			free, err := s.freeSlots(ctx, tx, p, q.ShopID, day, loc, svc.Duration())
			if err != nil {
				return err
			}
			if len(free) > 0 {
				out = append(out, ProviderSlots{ProviderID: p, Slots: free})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type AvailableProvidersQuery struct {
	ShopID    string
	ServiceID uuid.UUID
	Start     time.Time
}

// AvailableProviders returns the shop's providers who could take the service at Start: the whole
// interval fits one of their windows at the shop and overlaps none of their active appointments.
func (s *Service) AvailableProviders(ctx context.Context, q AvailableProvidersQuery) (out []domain.Provider, err error) {
	ctx, finish := s.startSpan(ctx, "available_providers")
	defer func() { finish(err) }()

	switch {
	case strings.TrimSpace(q.ShopID) == "":
		return nil, service.Invalid("shop_id is required")
	case q.ServiceID == uuid.Nil:
		return nil, service.Invalid("service_id is required")
	case q.Start.IsZero():
		return nil, service.Invalid("start_time is required")
	case q.Start.Before(s.now()):
		return nil, service.Invalid("start_time must be in the future")
	}

	err = s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		shop, svc, err := loadShopService(ctx, tx, q.ShopID, q.ServiceID)
		if err != nil {
			return err
		}
		providers, err := tx.ListShopProviders(ctx, q.ShopID)
		if err != nil {
			return err
		}

		out = nil
		for _, p := range providers {
			candidate := domain.Appointment{
				ProviderID: p.ID,
				ShopID:     q.ShopID,
				StartTime:  q.Start.UTC(),
				EndTime:    q.Start.UTC().Add(svc.Duration()),
			}
			err := checkWithinTemplate(ctx, tx, candidate, shop.Location())
			if errors.Is(err, store.ErrSlotUnavailable) {
				continue
			}
			if err != nil {
				return err
			}
			busy, err := conflicts.HasConflict(ctx, tx, p.ID, candidate.Interval())
			if err != nil {
				return err
			}
			if !busy {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// searchTarget validates the shop and service, and the provider's membership when one is named.
func (s *Service) searchTarget(ctx context.Context, tx store.Tx, providerID, shopID string, serviceID uuid.UUID) (domain.Shop, domain.Service, error) {
	if providerID != "" {
		return loadBookable(ctx, tx, providerID, shopID, serviceID)
	}
	return loadShopService(ctx, tx, shopID, serviceID)
}

func (s *Service) candidates(ctx context.Context, tx store.Tx, providerID, shopID string) ([]string, error) {
	if providerID != "" {
		return []string{providerID}, nil
	}
	providers, err := tx.ListShopProviders(ctx, shopID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *Service) startDate(from string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(from) == "" {
		y, m, d := s.now().In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := domain.ParseDate(from, loc)
	if err != nil {
		return time.Time{}, service.Invalid("from must be YYYY-MM-DD")
	}
	return day, nil
}
