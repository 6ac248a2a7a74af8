package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
)

// Tx is the read/write surface available inside a transaction. Reads observe the transaction's own
// writes.
type Tx interface {
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)
	GetShop(ctx context.Context, shopID string) (domain.Shop, error)
	IsMember(ctx context.Context, providerID, shopID string) (bool, error)
	// ListProviderShops returns the shops the provider works at, ordered by id.
	ListProviderShops(ctx context.Context, providerID string) ([]domain.Shop, error)
	ListShopProviders(ctx context.Context, shopID string) ([]domain.Provider, error)

	GetService(ctx context.Context, id uuid.UUID) (domain.Service, error)
	UpsertService(ctx context.Context, svc domain.Service) (domain.Service, error)

	// ListWindows returns the provider's active windows for weekday, ordered by start.
	ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error)
	GetWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error)
	InsertWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	UpdateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)

	ListActiveAppointments(ctx context.Context, providerID string, span domain.Interval) ([]domain.Appointment, error)
	ListAppointments(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// CreateAppointment inserts appt. Re-inserting an existing id with identical content returns the
	// stored row; differing content yields ErrIdempotencyConflict.
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// TransitionAppointment moves the appointment to `to` only if its current status is one of from.
	// It returns ErrInvalidTransition when the row exists in another status.
	TransitionAppointment(ctx context.Context, change StatusChange) (domain.Appointment, error)
	// ListConfirmedEndedBefore returns up to limit CONFIRMED appointments whose end is at or before t.
	ListConfirmedEndedBefore(ctx context.Context, t time.Time, limit int) ([]domain.Appointment, error)
}

type StatusChange struct {
	ID     uuid.UUID
	From   []domain.Status
	To     domain.Status
	Reason string
	At     time.Time
}

// Repository is the persistence boundary. InProviderTransaction serializes every transaction for
// the same provider.
type Repository interface {
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx Tx) error) error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Apply stamps the status change onto appt the way every store records it.
func (c StatusChange) Apply(appt *domain.Appointment) {
	appt.Status = c.To
	at := c.At.UTC()
	switch c.To {
	case domain.StatusConfirmed:
		appt.ConfirmedAt = &at
	case domain.StatusCompleted:
		appt.CompletedAt = &at
	case domain.StatusCancelled:
		appt.CancelledAt = &at
		appt.CancelReason = c.Reason
	}
	appt.UpdatedAt = at
}

// SameBooking reports whether two appointment requests carry the same content, used to decide
// whether a replayed idempotency key is a retry or a conflict.
func SameBooking(a, b domain.Appointment) bool {
	return a.ProviderID == b.ProviderID &&
		a.ShopID == b.ShopID &&
		a.ClientID == b.ClientID &&
		a.ServiceID == b.ServiceID &&
		a.StartTime.Equal(b.StartTime)
}
