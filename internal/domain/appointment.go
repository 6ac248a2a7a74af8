package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID      string     `bun:"provider_id,notnull"`
	ShopID          string     `bun:"shop_id,notnull"`
	ClientID        string     `bun:"client_id,notnull"`
	ServiceID       uuid.UUID  `bun:"service_id,notnull,type:uuid"`
	StartTime       time.Time  `bun:"start_time,notnull"`
	EndTime         time.Time  `bun:"end_time,notnull"`
	DurationSeconds int        `bun:"duration_seconds,notnull"`
	PriceCents      int64      `bun:"price_cents,notnull"`
	Status          Status     `bun:"status,notnull"`
	CancelReason    string     `bun:"cancel_reason,nullzero"`
	ConfirmedAt     *time.Time `bun:"confirmed_at"`
	CompletedAt     *time.Time `bun:"completed_at"`
	CancelledAt     *time.Time `bun:"cancelled_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Interval returns the half-open [start, end) span the appointment occupies.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Duration is the service duration snapshotted when the appointment was created.
func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

// LocalDate formats the appointment's start as a calendar date in loc.
func (a Appointment) LocalDate(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return a.StartTime.In(loc).Format(DateLayout)
}
