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
	"chairbook/backend/internal/slots"
	"chairbook/backend/internal/store"
)

type CreateInput struct {
	ProviderID     string
	ShopID         string
	ClientID       string
	ServiceID      uuid.UUID
	Start          time.Time
	IdempotencyKey string
}

// CreateBooking reserves [Start, Start+service duration) for the client as a PENDING appointment.
// The template check, conflict check and insert run in one provider-scoped transaction.
func (s *Service) CreateBooking(ctx context.Context, in CreateInput) (appt domain.Appointment, err error) {
	ctx, finish := s.startSpan(ctx, "create")
	defer func() { finish(err) }()

	req, err := s.newAppointment(in)
	if err != nil {
		return domain.Appointment{}, err
	}
	replayable := strings.TrimSpace(in.IdempotencyKey) != ""

	type result struct {
		appt    domain.Appointment
		loc     *time.Location
		shops   []domain.Shop
		created bool
	}
	attempt := 0
	res, err := withRetry(ctx, s, "create", func(ctx context.Context) (result, error) {
		attempt++
		var out result
		err := s.repo.InProviderTransaction(ctx, req.ProviderID, func(ctx context.Context, tx store.Tx) error {
			// A retried attempt may follow a commit whose acknowledgement was lost.
			if replayable || attempt > 1 {
				existing, err := tx.GetAppointment(ctx, req.ID)
				switch {
				case err == nil:
					if !store.SameBooking(existing, req) {
						return store.ErrIdempotencyConflict
					}
					out = result{appt: existing}
					if attempt > 1 {
						shops, loc, err := shopsFor(ctx, tx, existing.ProviderID, existing.ShopID)
						if err != nil {
							return err
						}
						out = result{appt: existing, loc: loc, shops: shops, created: true}
					}
					return nil
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
			}

			shop, svc, err := loadBookable(ctx, tx, req.ProviderID, req.ShopID, req.ServiceID)
			if err != nil {
				return err
			}

			appt := req
			appt.DurationSeconds = svc.DurationSeconds
			appt.PriceCents = svc.PriceCents
			appt.EndTime = appt.StartTime.Add(svc.Duration())

			loc := shop.Location()
			if err := checkWithinTemplate(ctx, tx, appt, loc); err != nil {
				return err
			}

			conflict, err := conflicts.HasConflict(ctx, tx, appt.ProviderID, appt.Interval())
			if err != nil {
				return err
			}
			if conflict {
				return store.ErrConflict
			}

			shops, err := tx.ListProviderShops(ctx, appt.ProviderID)
			if err != nil {
				return err
			}
			created, err := tx.CreateAppointment(ctx, appt)
			if err != nil {
				return err
			}
			out = result{appt: created, loc: loc, shops: shops, created: true}
			return nil
		})
		return out, err
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if res.created {
		s.log.InfoContext(ctx, "appointment created",
			"appointment_id", res.appt.ID.String(),
			"provider_id", res.appt.ProviderID,
			"start_time", res.appt.StartTime,
		)
		s.announce(ctx, res.appt, res.loc, res.shops)
	}
	return res.appt, nil
}

func (s *Service) newAppointment(in CreateInput) (domain.Appointment, error) {
	providerID := strings.TrimSpace(in.ProviderID)
	shopID := strings.TrimSpace(in.ShopID)
	clientID := strings.TrimSpace(in.ClientID)
	switch {
	case providerID == "":
		return domain.Appointment{}, service.Invalid("provider_id is required")
	case shopID == "":
		return domain.Appointment{}, service.Invalid("shop_id is required")
	case clientID == "":
		return domain.Appointment{}, service.Invalid("client_id is required")
	case in.ServiceID == uuid.Nil:
		return domain.Appointment{}, service.Invalid("service_id is required")
	case in.Start.IsZero():
		return domain.Appointment{}, service.Invalid("start_time is required")
	}

	start := in.Start.UTC()
	if start.Before(s.now()) {
		return domain.Appointment{}, service.Invalid("start_time must be in the future")
	}

	appt := domain.Appointment{
		ProviderID: providerID,
		ShopID:     shopID,
		ClientID:   clientID,
		ServiceID:  in.ServiceID,
		StartTime:  start,
		Status:     domain.StatusPending,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, service.Invalid("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("chairbook:create_appointment:"+clientID+":"+key))
		return appt, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.ID = id
	return appt, nil
}

// loadBookable resolves the shop and service for a booking and checks the provider works there.
// Any missing or mismatched reference is ErrNotFound.
func loadBookable(ctx context.Context, tx store.Tx, providerID, shopID string, serviceID uuid.UUID) (domain.Shop, domain.Service, error) {
	if _, err := tx.GetProvider(ctx, providerID); err != nil {
		return domain.Shop{}, domain.Service{}, fmt.Errorf("provider %s: %w", providerID, err)
	}
	shop, svc, err := loadShopService(ctx, tx, shopID, serviceID)
	if err != nil {
		return domain.Shop{}, domain.Service{}, err
	}
	member, err := tx.IsMember(ctx, providerID, shopID)
	if err != nil {
		return domain.Shop{}, domain.Service{}, err
	}
	if !member {
		return domain.Shop{}, domain.Service{}, fmt.Errorf("provider %s at shop %s: %w", providerID, shopID, store.ErrNotFound)
	}
	return shop, svc, nil
}

// loadShopService resolves a shop and an active service it offers.
func loadShopService(ctx context.Context, tx store.Tx, shopID string, serviceID uuid.UUID) (domain.Shop, domain.Service, error) {
	shop, err := tx.GetShop(ctx, shopID)
	if err != nil {
		return domain.Shop{}, domain.Service{}, fmt.Errorf("shop %s: %w", shopID, err)
	}
	svc, err := tx.GetService(ctx, serviceID)
	if err != nil {
		return domain.Shop{}, domain.Service{}, fmt.Errorf("service %s: %w", serviceID, err)
	}
	if !svc.Active || svc.ShopID != shopID || svc.DurationSeconds <= 0 {
		return domain.Shop{}, domain.Service{}, fmt.Errorf("service %s at shop %s: %w", serviceID, shopID, store.ErrNotFound)
	}
	return shop, svc, nil
}

// checkWithinTemplate re-reads the provider's windows for the appointment's local weekday and
// requires the whole interval to fit one window at the booked shop.
func checkWithinTemplate(ctx context.Context, tx store.Tx, appt domain.Appointment, loc *time.Location) error {
	y, m, d := appt.StartTime.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	windows, err := tx.ListWindows(ctx, appt.ProviderID, day.Weekday())
	if err != nil {
		return err
	}
	intervals := domain.ExpandWindows(windowsAtShop(windows, appt.ShopID), day, loc)
	if !slots.Fits(intervals, appt.StartTime, appt.EndTime) {
		return store.ErrSlotUnavailable
	}
	return nil
}

func windowsAtShop(windows []domain.AvailabilityWindow, shopID string) []domain.AvailabilityWindow {
	out := windows[:0:0]
	for _, w := range windows {
		if w.ShopID == shopID {
			out = append(out, w)
		}
	}
	return out
}
