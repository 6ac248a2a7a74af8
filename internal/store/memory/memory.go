// Package memory is an in-process store. Transactions run one at a time and their writes become
// visible only when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/store"
)

type windowKey struct {
	providerID string
	weekday    time.Weekday
}

type membership struct {
	providerID string
	shopID     string
}

type Store struct {
	mu sync.Mutex

	providers    map[string]domain.Provider
	shops        map[string]domain.Shop
	members      map[membership]struct{}
	services     map[uuid.UUID]domain.Service
	windows      map[uuid.UUID]domain.AvailabilityWindow
	windowIndex  map[windowKey]map[uuid.UUID]struct{}
	appointments map[uuid.UUID]domain.Appointment
	byProvider   map[string]map[uuid.UUID]struct{}
}

func New() *Store {
	return &Store{
		providers:    make(map[string]domain.Provider),
		shops:        make(map[string]domain.Shop),
		members:      make(map[membership]struct{}),
		services:     make(map[uuid.UUID]domain.Service),
		windows:      make(map[uuid.UUID]domain.AvailabilityWindow),
		windowIndex:  make(map[windowKey]map[uuid.UUID]struct{}),
		appointments: make(map[uuid.UUID]domain.Appointment),
		byProvider:   make(map[string]map[uuid.UUID]struct{}),
	}
}

func (s *Store) PutProvider(p domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Store) PutShop(sh domain.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = sh
}

func (s *Store) AddMembership(providerID, shopID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[membership{providerID: providerID, shopID: shopID}] = struct{}{}
}

func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.InTransaction(ctx, fn)
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:            s,
		services:     make(map[uuid.UUID]domain.Service),
		windows:      make(map[uuid.UUID]domain.AvailabilityWindow),
		appointments: make(map[uuid.UUID]domain.Appointment),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	for id, svc := range tx.services {
		s.services[id] = svc
	}
	for id, w := range tx.windows {
		if old, ok := s.windows[id]; ok {
			delete(s.windowIndex[windowKey{old.ProviderID, old.Weekday}], id)
		}
		s.windows[id] = w
		key := windowKey{w.ProviderID, w.Weekday}
		if s.windowIndex[key] == nil {
			s.windowIndex[key] = make(map[uuid.UUID]struct{})
		}
		s.windowIndex[key][id] = struct{}{}
	}
	for id, a := range tx.appointments {
		s.appointments[id] = a
		if s.byProvider[a.ProviderID] == nil {
			s.byProvider[a.ProviderID] = make(map[uuid.UUID]struct{})
		}
		s.byProvider[a.ProviderID][id] = struct{}{}
	}
}

type memTx struct {
	s *Store

	services     map[uuid.UUID]domain.Service
	windows      map[uuid.UUID]domain.AvailabilityWindow
	appointments map[uuid.UUID]domain.Appointment
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	p, ok := t.s.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return p, nil
}

func (t *memTx) GetShop(ctx context.Context, shopID string) (domain.Shop, error) {
	sh, ok := t.s.shops[shopID]
	if !ok {
		return domain.Shop{}, store.ErrNotFound
	}
	return sh, nil
}

func (t *memTx) IsMember(ctx context.Context, providerID, shopID string) (bool, error) {
	_, ok := t.s.members[membership{providerID: providerID, shopID: shopID}]
	return ok, nil
}

func (t *memTx) ListProviderShops(ctx context.Context, providerID string) ([]domain.Shop, error) {
	var out []domain.Shop
	for m := range t.s.members {
		if m.providerID != providerID {
			continue
		}
		if sh, ok := t.s.shops[m.shopID]; ok {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ListShopProviders(ctx context.Context, shopID string) ([]domain.Provider, error) {
	var out []domain.Provider
	for m := range t.s.members {
		if m.shopID != shopID {
			continue
		}
		if p, ok := t.s.providers[m.providerID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	if svc, ok := t.services[id]; ok {
		return svc, nil
	}
	svc, ok := t.s.services[id]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (t *memTx) UpsertService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	now := time.Now().UTC()
	if svc.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Service{}, err
		}
		svc.ID = id
	}
	if existing, err := t.GetService(ctx, svc.ID); err == nil {
		svc.CreatedAt = existing.CreatedAt
	} else {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now
	t.services[svc.ID] = svc
	return svc, nil
}

func (t *memTx) ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	key := windowKey{providerID, weekday}
	seen := make(map[uuid.UUID]struct{})
	var out []domain.AvailabilityWindow
	add := func(w domain.AvailabilityWindow) {
		if _, ok := seen[w.ID]; ok {
			return
		}
		seen[w.ID] = struct{}{}
		if w.Active && w.ProviderID == providerID && w.Weekday == weekday {
			out = append(out, w)
		}
	}
	for _, w := range t.windows {
		add(w)
	}
	for id := range t.s.windowIndex[key] {
		if _, staged := t.windows[id]; staged {
			continue
		}
		add(t.s.windows[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (t *memTx) GetWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error) {
	if w, ok := t.windows[id]; ok {
		return w, nil
	}
	w, ok := t.s.windows[id]
	if !ok {
		return domain.AvailabilityWindow{}, store.ErrNotFound
	}
	return w, nil
}

func (t *memTx) InsertWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.AvailabilityWindow{}, err
		}
		w.ID = id
	}
	if _, err := t.GetWindow(ctx, w.ID); err == nil {
		return domain.AvailabilityWindow{}, store.ErrConflict
	}
	if err := t.checkWindowOverlap(ctx, w); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	t.windows[w.ID] = w
	return w, nil
}

func (t *memTx) UpdateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	existing, err := t.GetWindow(ctx, w.ID)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if err := t.checkWindowOverlap(ctx, w); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	t.windows[w.ID] = w
	return w, nil
}

func (t *memTx) checkWindowOverlap(ctx context.Context, w domain.AvailabilityWindow) error {
	if !w.Active {
		return nil
	}
	others, err := t.ListWindows(ctx, w.ProviderID, w.Weekday)
	if err != nil {
		return err
	}
	for _, o := range others {
		if o.ID != w.ID && o.Overlaps(w) {
			return store.ErrOverlap
		}
	}
	return nil
}

func (t *memTx) providerAppointments(providerID string) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range t.appointments {
		if a.ProviderID == providerID {
			out = append(out, a)
		}
	}
	for id := range t.s.byProvider[providerID] {
		if _, staged := t.appointments[id]; staged {
			continue
		}
		out = append(out, t.s.appointments[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (t *memTx) ListActiveAppointments(ctx context.Context, providerID string, span domain.Interval) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range t.providerAppointments(providerID) {
		if a.Status.Active() && a.Interval().Overlaps(span) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) ListAppointments(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range t.providerAppointments(providerID) {
		if a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.appointments[id]; ok {
		return a, nil
	}
	a, ok := t.s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if existing, err := t.GetAppointment(ctx, appt.ID); err == nil {
		if !store.SameBooking(existing, appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}

	if appt.Status.Active() {
		active, err := t.ListActiveAppointments(ctx, appt.ProviderID, appt.Interval())
		if err != nil {
			return domain.Appointment{}, err
		}
		if len(active) > 0 {
			return domain.Appointment{}, store.ErrConflict
		}
	}

	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	t.appointments[appt.ID] = appt
	return appt, nil
}

func (t *memTx) TransitionAppointment(ctx context.Context, change store.StatusChange) (domain.Appointment, error) {
	appt, err := t.GetAppointment(ctx, change.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	allowed := false
	for _, from := range change.From {
		if appt.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Appointment{}, store.ErrInvalidTransition
	}
	change.Apply(&appt)
	t.appointments[appt.ID] = appt
	return appt, nil
}

func (t *memTx) ListConfirmedEndedBefore(ctx context.Context, at time.Time, limit int) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for id := range t.s.appointments {
		a, _ := t.GetAppointment(ctx, id)
		if a.Status == domain.StatusConfirmed && !a.EndTime.After(at) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}
