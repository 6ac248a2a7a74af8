// Package booking owns the appointment lifecycle: creation against a provider's availability and
// existing bookings, and the PENDING → CONFIRMED → COMPLETED / CANCELLED state machine.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/events"
	"chairbook/backend/internal/metrics"
	"chairbook/backend/internal/notify"
	"chairbook/backend/internal/store"
)

type Policy struct {
	// Step is the slot grid granularity.
	Step time.Duration
	// CompleteRequiresStart rejects completing an appointment before its start time.
	CompleteRequiresStart bool
	// AutoComplete lets CompleteElapsed move finished CONFIRMED appointments to COMPLETED.
	AutoComplete      bool
	AutoCompleteBatch int
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	// SearchHorizonDays bounds how far NextAvailableSlot looks ahead.
	SearchHorizonDays int
}

func DefaultPolicy() Policy {
	return Policy{
		Step:                  15 * time.Minute,
		CompleteRequiresStart: true,
		AutoCompleteBatch:     100,
		RetryAttempts:         3,
		RetryBaseDelay:        50 * time.Millisecond,
		SearchHorizonDays:     14,
	}
}

type Service struct {
	repo      store.Repository
	notifier  notify.Notifier
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	tracer    trace.Tracer
	log       *slog.Logger
	now       func() time.Time
	policy    Policy
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		notifier:  notify.Nop{},
		publisher: events.Nop{},
		tracer:    otel.Tracer("chairbook/booking"),
		log:       slog.Default(),
		now:       time.Now,
		policy:    DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Step <= 0 {
		s.policy.Step = DefaultPolicy().Step
	}
	if s.policy.SearchHorizonDays < 1 {
		s.policy.SearchHorizonDays = DefaultPolicy().SearchHorizonDays
	}
	if s.policy.RetryAttempts < 1 {
		s.policy.RetryAttempts = 1
	}
	s.log = s.log.With("component", "booking")
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) startSpan(ctx context.Context, op string) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, "booking."+op)
	started := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
		span.End()
		s.metrics.ObserveOperation(op, outcome(err), time.Since(started).Seconds())
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, store.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, store.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, store.ErrTransient):
		return "transient"
	}
	return "error"
}

// announce tells the cache layer and lifecycle subscribers about a committed change. Failures are
// logged and counted only.
func (s *Service) announce(ctx context.Context, appt domain.Appointment, loc *time.Location, shops []domain.Shop) {
	date := appt.LocalDate(loc)
	s.notify(ctx, notify.KindBookingChanged, notify.Scope{ProviderID: appt.ProviderID, ShopID: appt.ShopID, Date: date})

	// A provider's time is shared across shops, and each shop keys its slot lists by its own local date.
	if len(shops) == 0 {
		s.notify(ctx, notify.KindSlotsChanged, notify.Scope{ProviderID: appt.ProviderID, Date: date})
	}
	for _, shop := range shops {
		for _, d := range appt.Interval().LocalDates(shop.Location()) {
			s.notify(ctx, notify.KindSlotsChanged, notify.Scope{ProviderID: appt.ProviderID, ShopID: shop.ID, Date: d})
		}
	}

	ev := events.NewEvent(events.TypeFor(appt.Status), appt, s.now())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.ObservePublishFailure(string(ev.Type))
		s.log.WarnContext(ctx, "lifecycle event publish failed",
			slog.String("event_type", string(ev.Type)),
			slog.String("appointment_id", appt.ID.String()),
			slog.Any("err", err),
		)
	}
}

// shopsFor returns the provider's shops and the location of shopID among them.
func shopsFor(ctx context.Context, tx store.Tx, providerID, shopID string) ([]domain.Shop, *time.Location, error) {
	shops, err := tx.ListProviderShops(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}
	for _, sh := range shops {
		if sh.ID == shopID {
			return shops, sh.Location(), nil
		}
	}
	// The membership may have ended after the booking was made.
	shop, err := tx.GetShop(ctx, shopID)
	if err != nil {
		return nil, nil, err
	}
	return shops, shop.Location(), nil
}

func (s *Service) notify(ctx context.Context, kind notify.Kind, scope notify.Scope) {
	if err := s.notifier.Notify(ctx, kind, scope); err != nil {
		s.metrics.ObserveNotifyFailure(string(kind))
		s.log.WarnContext(ctx, "invalidation failed",
			slog.String("kind", string(kind)),
			slog.String("provider_id", scope.ProviderID),
			slog.String("date", scope.Date),
			slog.Any("err", err),
		)
	}
}
