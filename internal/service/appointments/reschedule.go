package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"consultd/internal/domain"
	"consultd/internal/store"
)

// Reschedule moves an active appointment to a new slot. The appointment's own
// reservation does not count as a conflict, and only date and time change.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (appt domain.Appointment, err error) {
	ctx, done := s.begin(ctx, "Reschedule",
		attribute.String("appointment_id", id.String()),
		attribute.String("slot_time", newTime),
	)
	defer func() { done(err) }()

	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if newDate.IsZero() {
		return domain.Appointment{}, validationError("new_date is required")
	}
	if _, err := domain.ParseClock(newTime); err != nil {
		return domain.Appointment{}, validationError("new_time must be HH:MM")
	}
	date := domain.CalendarDate(newDate)

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	release, err := s.lockSlot(ctx, current.ProviderID, date, newTime)
	if err != nil {
		return domain.Appointment{}, err
	}
	defer release()

	var out domain.Appointment
	err = s.repo.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		now := s.now()
		if err := a.CheckReschedulable(now, s.loc, s.policy); err != nil {
			return err
		}

		moved := a
		moved.MoveTo(date, newTime, now)
		if !moved.StartsAt(s.loc).After(now) {
			return fmt.Errorf("%w: new slot is in the past", domain.ErrSlotUnavailable)
		}

		p, err := tx.GetProvider(ctx, a.ProviderID)
		if err != nil {
			return fmt.Errorf("provider %s: %w", a.ProviderID, err)
		}
		if err := s.checkSlot(ctx, tx, p, date, newTime, a.ID); err != nil {
			return err
		}

		updated, err := tx.UpdateAppointment(ctx, moved)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: slot already booked", domain.ErrSlotUnavailable)
			}
			return err
		}
		if err := s.appendEvent(ctx, tx, domain.EventAppointmentRescheduled, updated); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}
