package conflicts

import (
	"context"
	"fmt"

	"chairbook/backend/internal/domain"
)

// Reader is the slice of a provider transaction the detector needs. Implementations return the
// provider's PENDING, CONFIRMED and COMPLETED appointments intersecting span.
type Reader interface {
	ListActiveAppointments(ctx context.Context, providerID string, span domain.Interval) ([]domain.Appointment, error)
}

// Overlapping returns the active appointments whose interval intersects proposed.
func Overlapping(appts []domain.Appointment, proposed domain.Interval) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range appts {
		if !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(proposed) {
			out = append(out, a)
		}
	}
	return out
}

func HasConflict(ctx context.Context, r Reader, providerID string, proposed domain.Interval) (bool, error) {
	appts, err := r.ListActiveAppointments(ctx, providerID, proposed)
	if err != nil {
		return false, fmt.Errorf("list active appointments: %w", err)
	}
	return len(Overlapping(appts, proposed)) > 0, nil
}
