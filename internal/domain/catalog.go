package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider is owned by account management; the engine only reads it.
type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type Shop struct {
	bun.BaseModel `bun:"table:shops"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Timezone  string    `bun:"timezone,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// Location resolves the shop's timezone, falling back to UTC when it is empty or unknown.
func (s Shop) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ProviderShop struct {
	bun.BaseModel `bun:"table:provider_shops"`

	ProviderID string `bun:"provider_id,pk"`
	ShopID     string `bun:"shop_id,pk"`
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	ShopID          string    `bun:"shop_id,notnull"`
	Name            string    `bun:"name,notnull"`
	DurationSeconds int       `bun:"duration_seconds,notnull"`
	PriceCents      int64     `bun:"price_cents,notnull"`
	Active          bool      `bun:"active,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func (s *Service) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}
