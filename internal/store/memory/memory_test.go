package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/store"
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC)
}

func pending(providerID string, start, end time.Time) domain.Appointment {
	return domain.Appointment{
		ProviderID: providerID,
		ShopID:     "s1",
		ClientID:   "c1",
		ServiceID:  uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
		StartTime:  start,
		EndTime:    end,
		Status:     domain.StatusPending,
	}
}

func TestInTransaction_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	var id uuid.UUID
	err := s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		a, err := tx.CreateAppointment(ctx, pending("p1", at(10, 0), at(10, 30)))
		if err != nil {
			return err
		}
		id = a.ID
		if _, err := tx.GetAppointment(ctx, id); err != nil {
			t.Fatalf("write not visible inside its own transaction: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	err = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetAppointment(ctx, id)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after rollback", err)
	}
}

func TestCreateAppointment_OverlapAndIdempotency(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := pending("p1", at(10, 0), at(10, 30))
	first.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	err := s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateAppointment(ctx, first)
		return err
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	err = s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateAppointment(ctx, pending("p1", at(10, 15), at(10, 45)))
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	err = s.InProviderTransaction(ctx, "p2", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateAppointment(ctx, pending("p2", at(10, 15), at(10, 45)))
		return err
	})
	if err != nil {
		t.Fatalf("other provider should not conflict: %v", err)
	}

	var replay domain.Appointment
	err = s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		var err error
		replay, err = tx.CreateAppointment(ctx, first)
		return err
	})
	if err != nil || replay.ID != first.ID {
		t.Fatalf("replay = %v, %v", replay.ID, err)
	}

	changed := first
	changed.StartTime = at(11, 0)
	changed.EndTime = at(11, 30)
	err = s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateAppointment(ctx, changed)
		return err
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestTransitionAppointment_CompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()

	var id uuid.UUID
	_ = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.CreateAppointment(ctx, pending("p1", at(10, 0), at(10, 30)))
		id = a.ID
		return err
	})

	confirm := store.StatusChange{ID: id, From: []domain.Status{domain.StatusPending}, To: domain.StatusConfirmed, At: at(8, 0)}
	var got domain.Appointment
	err := s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.TransitionAppointment(ctx, confirm)
		return err
	})
	if err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if got.Status != domain.StatusConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("got %+v", got)
	}

	err = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.TransitionAppointment(ctx, confirm)
		return err
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestWindows_IndexAndOverlap(t *testing.T) {
	s := New()
	ctx := context.Background()

	morning := domain.AvailabilityWindow{ProviderID: "p1", ShopID: "s1", Weekday: time.Monday, Start: domain.NewClock(9, 0), End: domain.NewClock(12, 0), Active: true}
	afternoon := domain.AvailabilityWindow{ProviderID: "p1", ShopID: "s2", Weekday: time.Monday, Start: domain.NewClock(13, 0), End: domain.NewClock(17, 0), Active: true}

	var morningID uuid.UUID
	err := s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.InsertWindow(ctx, afternoon); err != nil {
			return err
		}
		w, err := tx.InsertWindow(ctx, morning)
		morningID = w.ID
		return err
	})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}

	err = s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		clash := morning
		clash.ShopID = "s3"
		clash.Start = domain.NewClock(11, 0)
		_, err := tx.InsertWindow(ctx, clash)
		return err
	})
	if !errors.Is(err, store.ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}

	// Moving the morning window to Tuesday must drop it from Monday's index.
	err = s.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWindow(ctx, morningID)
		if err != nil {
			return err
		}
		w.Weekday = time.Tuesday
		_, err = tx.UpdateWindow(ctx, w)
		return err
	})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}

	_ = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		mon, _ := tx.ListWindows(ctx, "p1", time.Monday)
		tue, _ := tx.ListWindows(ctx, "p1", time.Tuesday)
		if len(mon) != 1 || mon[0].ShopID != "s2" {
			t.Fatalf("monday = %+v", mon)
		}
		if len(tue) != 1 || tue[0].ID != morningID {
			t.Fatalf("tuesday = %+v", tue)
		}
		return nil
	})
}

func TestListConfirmedEndedBefore(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, h := range []int{9, 10, 11} {
			a := pending("p1", at(h, 0), at(h, 30))
			a.Status = domain.StatusConfirmed
			if _, err := tx.CreateAppointment(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})

	_ = s.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ListConfirmedEndedBefore(ctx, at(10, 30), 10)
		if err != nil {
			t.Fatalf("list error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		return nil
	})
}

func TestInTransaction_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestMembershipListings(t *testing.T) {
	s := New()
	s.PutProvider(domain.Provider{ID: "p2", Name: "Two"})
	s.PutProvider(domain.Provider{ID: "p1", Name: "One"})
	s.PutShop(domain.Shop{ID: "s2", Timezone: "UTC"})
	s.PutShop(domain.Shop{ID: "s1", Timezone: "UTC"})
	s.PutShop(domain.Shop{ID: "s3", Timezone: "UTC"})
	s.AddMembership("p1", "s2")
	s.AddMembership("p1", "s1")
	s.AddMembership("p2", "s1")

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		shops, err := tx.ListProviderShops(ctx, "p1")
		if err != nil {
			return err
		}
		if len(shops) != 2 || shops[0].ID != "s1" || shops[1].ID != "s2" {
			t.Fatalf("p1 shops = %+v, want s1, s2", shops)
		}

		providers, err := tx.ListShopProviders(ctx, "s1")
		if err != nil {
			return err
		}
		if len(providers) != 2 || providers[0].ID != "p1" || providers[1].ID != "p2" {
			t.Fatalf("s1 providers = %+v, want p1, p2", providers)
		}

		none, err := tx.ListShopProviders(ctx, "s3")
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Fatalf("s3 providers = %+v, want none", none)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction: %v", err)
	}
}
