package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/store"
)

func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (appt domain.Appointment, err error) {
	ctx, finish := s.startSpan(ctx, "confirm")
	defer func() { finish(err) }()
	return s.transition(ctx, "confirm", id, domain.StatusConfirmed, "")
}

// CompleteBooking marks a CONFIRMED appointment as served. With CompleteRequiresStart set, an
// appointment that has not started yet cannot be completed.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (appt domain.Appointment, err error) {
	ctx, finish := s.startSpan(ctx, "complete")
	defer func() { finish(err) }()
	return s.transition(ctx, "complete", id, domain.StatusCompleted, "")
}

// CancelBooking is idempotent: cancelling a CANCELLED appointment returns it unchanged and emits
// nothing.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (appt domain.Appointment, err error) {
	ctx, finish := s.startSpan(ctx, "cancel")
	defer func() { finish(err) }()

	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return domain.Appointment{}, service.Invalid("reason too long")
	}
	return s.transition(ctx, "cancel", id, domain.StatusCancelled, reason)
}

type transitionResult struct {
	appt    domain.Appointment
	loc     *time.Location
	shops   []domain.Shop
	changed bool
}

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, to domain.Status, reason string) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, service.Invalid("appointment_id is required")
	}

	res, err := withRetry(ctx, s, op, func(ctx context.Context) (transitionResult, error) {
		var out transitionResult
		err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			r, err := s.applyTransition(ctx, tx, id, to, reason)
			out = r
			return err
		})
		return out, err
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if res.changed {
		s.log.InfoContext(ctx, "appointment status changed",
			slog.String("appointment_id", res.appt.ID.String()),
			slog.String("status", string(res.appt.Status)),
		)
		s.announce(ctx, res.appt, res.loc, res.shops)
	}
	return res.appt, nil
}

func (s *Service) applyTransition(ctx context.Context, tx store.Tx, id uuid.UUID, to domain.Status, reason string) (transitionResult, error) {
	current, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return transitionResult{}, fmt.Errorf("appointment %s: %w", id, err)
	}
	if to == domain.StatusCancelled && current.Status == domain.StatusCancelled {
		return transitionResult{appt: current}, nil
	}
	if !domain.CanTransition(current.Status, to) {
		return transitionResult{}, fmt.Errorf("%s to %s: %w", current.Status, to, store.ErrInvalidTransition)
	}

	now := s.now()
	if to == domain.StatusCompleted && s.policy.CompleteRequiresStart && now.Before(current.StartTime) {
		return transitionResult{}, fmt.Errorf("appointment has not started: %w", store.ErrInvalidTransition)
	}

	updated, err := tx.TransitionAppointment(ctx, store.StatusChange{
		ID:     id,
		From:   domain.TransitionSources(to),
		To:     to,
		Reason: reason,
		At:     now,
	})
	if errors.Is(err, store.ErrInvalidTransition) && to == domain.StatusCancelled {
		// Lost a race against another cancel: report the settled state.
		if latest, getErr := tx.GetAppointment(ctx, id); getErr == nil && latest.Status == domain.StatusCancelled {
			return transitionResult{appt: latest}, nil
		}
	}
	if err != nil {
		return transitionResult{}, err
	}

	shops, loc, err := shopsFor(ctx, tx, updated.ProviderID, updated.ShopID)
	if err != nil {
		return transitionResult{}, err
	}
	return transitionResult{appt: updated, loc: loc, shops: shops, changed: true}, nil
}

// CompleteElapsed completes CONFIRMED appointments whose end time has passed. It does nothing unless
// the policy enables automatic completion, and returns how many appointments it moved.
func (s *Service) CompleteElapsed(ctx context.Context) (n int, err error) {
	if !s.policy.AutoComplete {
		return 0, nil
	}
	ctx, finish := s.startSpan(ctx, "complete_elapsed")
	defer func() { finish(err) }()

	limit := s.policy.AutoCompleteBatch
	if limit <= 0 {
		limit = DefaultPolicy().AutoCompleteBatch
	}

	done, err := withRetry(ctx, s, "complete_elapsed", func(ctx context.Context) ([]transitionResult, error) {
		var out []transitionResult
		err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			out = nil
			due, err := tx.ListConfirmedEndedBefore(ctx, s.now(), limit)
			if err != nil {
				return err
			}
			for _, a := range due {
				r, err := s.applyTransition(ctx, tx, a.ID, domain.StatusCompleted, "")
				if errors.Is(err, store.ErrInvalidTransition) {
					continue
				}
				if err != nil {
					return err
				}
				out = append(out, r)
			}
			return nil
		})
		return out, err
	})
	if err != nil {
		return 0, err
	}

	for _, r := range done {
		s.announce(ctx, r.appt, r.loc, r.shops)
	}
	if len(done) > 0 {
		s.log.InfoContext(ctx, "completed elapsed appointments", slog.Int("count", len(done)))
	}
	return len(done), nil
}
