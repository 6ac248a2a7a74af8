package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/store"
)

const (
	appointmentsNoOverlap = "appointments_no_overlap"
	windowsNoOverlap      = "availability_windows_no_overlap"
)

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

var _ store.Repository = (*SchedulingRepo)(nil)

type schedulingTx struct {
	tx bun.Tx
}

var _ store.Tx = schedulingTx{}

func (r *SchedulingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InProviderTransaction runs fn while holding a transaction-scoped advisory lock on the provider,
// so concurrent bookings for one provider are serialized across server instances.
func (r *SchedulingRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.Tx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, schedulingTx{tx: tx})
	})
	return classify(err)
}

func (r *SchedulingRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, schedulingTx{tx: tx})
	})
	return classify(err)
}

func lockProvider(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

// classify maps driver failures onto the store taxonomy. Errors that already carry a store
// sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		if pgErr.ConstraintName == windowsNoOverlap {
			return store.ErrOverlap
		}
		return store.ErrConflict
	case "23503":
		return store.ErrNotFound
	case "23505":
		return store.ErrConflict
	case "40001", "40P01", "55P03", "57014":
		return fmt.Errorf("%w: sqlstate %s", store.ErrTransient, pgErr.Code)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (r schedulingTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	var p domain.Provider
	err := r.tx.NewSelect().Model(&p).Where("id = ?", providerID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Provider{}, notFound(err)
	}
	return p, nil
}

func (r schedulingTx) GetShop(ctx context.Context, shopID string) (domain.Shop, error) {
	var s domain.Shop
	err := r.tx.NewSelect().Model(&s).Where("id = ?", shopID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Shop{}, notFound(err)
	}
	return s, nil
}

func (r schedulingTx) IsMember(ctx context.Context, providerID, shopID string) (bool, error) {
	return r.tx.NewSelect().
		Model((*domain.ProviderShop)(nil)).
		Where("provider_id = ?", providerID).
		Where("shop_id = ?", shopID).
		Exists(ctx)
}

func (r schedulingTx) ListProviderShops(ctx context.Context, providerID string) ([]domain.Shop, error) {
	members := r.tx.NewSelect().
		Model((*domain.ProviderShop)(nil)).
		Column("shop_id").
		Where("provider_id = ?", providerID)

	var shops []domain.Shop
	err := r.tx.NewSelect().Model(&shops).Where("id IN (?)", members).Order("id").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return shops, nil
}

func (r schedulingTx) ListShopProviders(ctx context.Context, shopID string) ([]domain.Provider, error) {
	members := r.tx.NewSelect().
		Model((*domain.ProviderShop)(nil)).
		Column("provider_id").
		Where("shop_id = ?", shopID)

	var providers []domain.Provider
	err := r.tx.NewSelect().Model(&providers).Where("id IN (?)", members).Order("id").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (r schedulingTx) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	var s domain.Service
	err := r.tx.NewSelect().Model(&s).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Service{}, notFound(err)
	}
	return s, nil
}

func (r schedulingTx) UpsertService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	m := svc
	_, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("duration_seconds = EXCLUDED.duration_seconds").
		Set("price_cents = EXCLUDED.price_cents").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Service{}, err
	}
	return m, nil
}

func (r schedulingTx) ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("weekday = ?", int(weekday)).
		Where("active").
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) GetWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error) {
	var w domain.AvailabilityWindow
	err := r.tx.NewSelect().Model(&w).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.AvailabilityWindow{}, notFound(err)
	}
	return w, nil
}

func (r schedulingTx) InsertWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := w
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityWindow{}, classify(err)
	}
	return m, nil
}

func (r schedulingTx) UpdateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := w
	res, err := r.tx.NewUpdate().
		Model(&m).
		Column("shop_id", "weekday", "start_minute", "end_minute", "active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.AvailabilityWindow{}, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if affected == 0 {
		return domain.AvailabilityWindow{}, store.ErrNotFound
	}
	return r.GetWindow(ctx, w.ID)
}

func (r schedulingTx) ListActiveAppointments(ctx context.Context, providerID string, span domain.Interval) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(domain.ActiveStatuses)).
		Where("start_time < ?", span.End.UTC()).
		Where("end_time > ?", span.Start.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) ListAppointments(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("start_time < ?", to.UTC()).
		Where("end_time > ?", from.UTC()).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return a, nil
}

// CreateAppointment uses ON CONFLICT (id) DO NOTHING so a replayed id leaves the transaction
// usable for reading back the stored row.
func (r schedulingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == appointmentsNoOverlap {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, classify(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	existing, err := r.GetAppointment(ctx, m.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !store.SameBooking(existing, appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r schedulingTx) TransitionAppointment(ctx context.Context, change store.StatusChange) (domain.Appointment, error) {
	var stamped domain.Appointment
	change.Apply(&stamped)

	q := r.tx.NewUpdate().
		Model(&stamped).
		Set("status = ?", change.To).
		Set("updated_at = ?", stamped.UpdatedAt)
	switch change.To {
	case domain.StatusConfirmed:
		q = q.Set("confirmed_at = ?", stamped.ConfirmedAt)
	case domain.StatusCompleted:
		q = q.Set("completed_at = ?", stamped.CompletedAt)
	case domain.StatusCancelled:
		q = q.Set("cancelled_at = ?", stamped.CancelledAt).
			Set("cancel_reason = NULLIF(?, '')", change.Reason)
	}

	res, err := q.
		Where("id = ?", change.ID).
		Where("status IN (?)", bun.In(change.From)).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}

	current, err := r.GetAppointment(ctx, change.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrInvalidTransition
	}
	return current, nil
}

func (r schedulingTx) ListConfirmedEndedBefore(ctx context.Context, t time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.tx.NewSelect().
		Model(&rows).
		Where("status = ?", domain.StatusConfirmed).
		Where("end_time <= ?", t.UTC()).
		OrderExpr("end_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}
