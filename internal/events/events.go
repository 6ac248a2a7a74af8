// Package events publishes booking lifecycle events for downstream collaborators such as payment
// capture.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
)

type Type string

const (
	TypeCreated   Type = "booking.created.v1"
	TypeConfirmed Type = "booking.confirmed.v1"
	TypeCompleted Type = "booking.completed.v1"
	TypeCancelled Type = "booking.cancelled.v1"
)

// TypeFor maps an appointment status onto the event announcing it.
func TypeFor(status domain.Status) Type {
	switch status {
	case domain.StatusConfirmed:
		return TypeConfirmed
	case domain.StatusCompleted:
		return TypeCompleted
	case domain.StatusCancelled:
		return TypeCancelled
	}
	return TypeCreated
}

type Event struct {
	ID            uuid.UUID `json:"event_id"`
	Type          Type      `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	ShopID        string    `json:"shop_id"`
	ClientID      string    `json:"client_id"`
	ServiceID     uuid.UUID `json:"service_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	PriceCents    int64     `json:"price_cents"`
	Status        string    `json:"status"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
}

func NewEvent(t Type, appt domain.Appointment, at time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:            id,
		Type:          t,
		OccurredAt:    at.UTC(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		ShopID:        appt.ShopID,
		ClientID:      appt.ClientID,
		ServiceID:     appt.ServiceID,
		StartTime:     appt.StartTime.UTC(),
		EndTime:       appt.EndTime.UTC(),
		PriceCents:    appt.PriceCents,
		Status:        string(appt.Status),
		CancelReason:  appt.CancelReason,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
