package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"chairbook/backend/internal/domain"
)

// Seed is the directory data account management owns in production: shops, providers and which
// shops each provider works at.
type Seed struct {
	Shops []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	} `json:"shops"`
	Providers []struct {
		ID    string   `json:"id"`
		Name  string   `json:"name"`
		Shops []string `json:"shops"`
	} `json:"providers"`
}

// LoadSeed reads a JSON Seed into the store.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	now := time.Now().UTC()
	for _, sh := range seed.Shops {
		if sh.ID == "" {
			return fmt.Errorf("seed: shop without id")
		}
		if sh.Timezone != "" {
			if _, err := time.LoadLocation(sh.Timezone); err != nil {
				return fmt.Errorf("seed: shop %s: %w", sh.ID, err)
			}
		}
		s.PutShop(domain.Shop{ID: sh.ID, Name: sh.Name, Timezone: sh.Timezone, CreatedAt: now})
	}
	for _, p := range seed.Providers {
		if p.ID == "" {
			return fmt.Errorf("seed: provider without id")
		}
		s.PutProvider(domain.Provider{ID: p.ID, Name: p.Name, CreatedAt: now})
		for _, shopID := range p.Shops {
			s.AddMembership(p.ID, shopID)
		}
	}
	return nil
}
