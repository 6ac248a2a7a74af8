package rest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service/availability"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/service/catalog"
)

type fakeBookings struct {
	createFn   func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	confirmFn  func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	completeFn func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	cancelFn   func(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	getFn      func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn     func(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error)
	slotsFn    func(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error)
}

func (f *fakeBookings) CreateBooking(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("CreateBooking not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeBookings) ConfirmBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.confirmFn == nil {
		panic("ConfirmBooking not configured")
	}
	return f.confirmFn(ctx, id)
}

func (f *fakeBookings) CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.completeFn == nil {
		panic("CompleteBooking not configured")
	}
	return f.completeFn(ctx, id)
}

func (f *fakeBookings) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("CancelBooking not configured")
	}
	return f.cancelFn(ctx, id, reason)
}

func (f *fakeBookings) GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetBooking not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeBookings) ListBookings(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("ListBookings not configured")
	}
	return f.listFn(ctx, providerID, from, to)
}

func (f *fakeBookings) AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error) {
	if f.slotsFn == nil {
		panic("AvailableSlots not configured")
	}
	return f.slotsFn(ctx, q)
}

type fakeTemplates struct {
	getFn        func(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error)
	upsertFn     func(ctx context.Context, in availability.UpsertWindowInput) (domain.AvailabilityWindow, error)
	deactivateFn func(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error)
}

func (f *fakeTemplates) GetWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	if f.getFn == nil {
		panic("GetWindows not configured")
	}
	return f.getFn(ctx, providerID, weekday)
}

func (f *fakeTemplates) UpsertWindow(ctx context.Context, in availability.UpsertWindowInput) (domain.AvailabilityWindow, error) {
	if f.upsertFn == nil {
		panic("UpsertWindow not configured")
	}
	return f.upsertFn(ctx, in)
}

func (f *fakeTemplates) DeactivateWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error) {
	if f.deactivateFn == nil {
		panic("DeactivateWindow not configured")
	}
	return f.deactivateFn(ctx, id)
}

type fakeCatalog struct {
	getFn        func(ctx context.Context, id uuid.UUID) (domain.Service, error)
	upsertFn     func(ctx context.Context, in catalog.UpsertServiceInput) (domain.Service, error)
	deactivateFn func(ctx context.Context, id uuid.UUID) (domain.Service, error)
}

func (f *fakeCatalog) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	if f.getFn == nil {
		panic("GetService not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeCatalog) UpsertService(ctx context.Context, in catalog.UpsertServiceInput) (domain.Service, error) {
	if f.upsertFn == nil {
		panic("UpsertService not configured")
	}
	return f.upsertFn(ctx, in)
}

func (f *fakeCatalog) DeactivateService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	if f.deactivateFn == nil {
		panic("DeactivateService not configured")
	}
	return f.deactivateFn(ctx, id)
}

type fakeSearch struct {
	nextFn      func(ctx context.Context, q booking.NextSlotQuery) (booking.ProviderSlot, error)
	shopSlotsFn func(ctx context.Context, q booking.ShopSlotsQuery) ([]booking.ProviderSlots, error)
	availableFn func(ctx context.Context, q booking.AvailableProvidersQuery) ([]domain.Provider, error)
}

func (f *fakeSearch) NextAvailableSlot(ctx context.Context, q booking.NextSlotQuery) (booking.ProviderSlot, error) {
	if f.nextFn == nil {
		panic("NextAvailableSlot not configured")
	}
	return f.nextFn(ctx, q)
}

func (f *fakeSearch) ShopSlots(ctx context.Context, q booking.ShopSlotsQuery) ([]booking.ProviderSlots, error) {
	if f.shopSlotsFn == nil {
		panic("ShopSlots not configured")
	}
	return f.shopSlotsFn(ctx, q)
}

func (f *fakeSearch) AvailableProviders(ctx context.Context, q booking.AvailableProvidersQuery) ([]domain.Provider, error) {
	if f.availableFn == nil {
		panic("AvailableProviders not configured")
	}
	return f.availableFn(ctx, q)
}
