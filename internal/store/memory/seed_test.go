package memory

import (
	"context"
	"strings"
	"testing"

	"chairbook/backend/internal/store"
)

func TestLoadSeed(t *testing.T) {
	st := New()
	err := st.LoadSeed(strings.NewReader(`{
		"shops": [{"id": "s1", "name": "Downtown", "timezone": "America/New_York"}],
		"providers": [{"id": "p1", "name": "Sam", "shops": ["s1"]}]
	}`))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}

	err = st.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		shop, err := tx.GetShop(ctx, "s1")
		if err != nil {
			return err
		}
		if shop.Location().String() != "America/New_York" {
			t.Fatalf("location = %s", shop.Location())
		}
		ok, err := tx.IsMember(ctx, "p1", "s1")
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("p1 should work at s1")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction: %v", err)
	}
}

func TestLoadSeed_RejectsBadTimezone(t *testing.T) {
	st := New()
	err := st.LoadSeed(strings.NewReader(`{"shops": [{"id": "s1", "timezone": "Mars/Olympus"}]}`))
	if err == nil {
		t.Fatalf("expected error")
	}
}
