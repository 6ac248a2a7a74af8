package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/slots"
	"chairbook/backend/internal/store"
)

const maxListRange = 93 * 24 * time.Hour

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, service.Invalid("appointment_id is required")
	}
	var out domain.Appointment
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAppointment(ctx, id)
		out = a
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// ListBookings returns every appointment of the provider, in any status, intersecting [from, to).
func (s *Service) ListBookings(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, service.Invalid("provider_id is required")
	}
	start := from.UTC()
	end := to.UTC()
	if !end.After(start) {
		return nil, service.Invalid("to must be after from")
	}
	if end.Sub(start) > maxListRange {
		return nil, service.Invalid("range too long")
	}

	var out []domain.Appointment
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.ListAppointments(ctx, providerID, start, end)
		out = rows
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type SlotsQuery struct {
	ProviderID string
	ShopID     string
	ServiceID  uuid.UUID
	// Date is a calendar date (YYYY-MM-DD) in the shop's timezone.
	Date string
}

// AvailableSlots lists the start times on the date at which the service could be booked with the
// provider at the shop: template slots minus those overlapping active appointments.
func (s *Service) AvailableSlots(ctx context.Context, q SlotsQuery) (out []time.Time, err error) {
	ctx, finish := s.startSpan(ctx, "available_slots")
	defer func() { finish(err) }()

	switch {
	case strings.TrimSpace(q.ProviderID) == "":
		return nil, service.Invalid("provider_id is required")
	case strings.TrimSpace(q.ShopID) == "":
		return nil, service.Invalid("shop_id is required")
	case q.ServiceID == uuid.Nil:
		return nil, service.Invalid("service_id is required")
	}

	err = s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		shop, svc, err := loadBookable(ctx, tx, q.ProviderID, q.ShopID, q.ServiceID)
		if err != nil {
			return err
		}
		loc := shop.Location()
		day, err := domain.ParseDate(q.Date, loc)
		if err != nil {
			return service.Invalid("date must be YYYY-MM-DD")
		}

		out, err = s.freeSlots(ctx, tx, q.ProviderID, q.ShopID, day, loc, svc.Duration())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// freeSlots computes the provider's template slots at the shop on day and drops those overlapping
// active appointments.
func (s *Service) freeSlots(ctx context.Context, tx store.Tx, providerID, shopID string, day time.Time, loc *time.Location, duration time.Duration) ([]time.Time, error) {
	windows, err := tx.ListWindows(ctx, providerID, day.Weekday())
	if err != nil {
		return nil, err
	}
	windows = windowsAtShop(windows, shopID)
	seq, err := slots.Compute(slots.Query{
		Date:     day,
		Location: loc,
		Windows:  windows,
		Duration: duration,
		Step:     s.policy.Step,
		Now:      s.now(),
	})
	if errors.Is(err, slots.ErrInvalidRequest) {
		return nil, service.Invalid(err.Error())
	}
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	nextDay := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	booked, err := tx.ListActiveAppointments(ctx, providerID, domain.Interval{Start: day, End: nextDay.Add(duration)})
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	busy := make([]domain.Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, a.Interval())
	}
	return slots.Collect(slots.Without(seq, duration, busy)), nil
}
