package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"consultd/internal/domain"
	"consultd/internal/store"
)

type CancelResult struct {
	Appointment  domain.Appointment
	RefundAmount int64
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, "Confirm", id, domain.EventAppointmentConfirmed, func(a *domain.Appointment, now time.Time) error {
		return a.Confirm(now)
	})
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, "Start", id, domain.EventAppointmentStarted, func(a *domain.Appointment, now time.Time) error {
		return a.Start(now)
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, "Complete", id, domain.EventAppointmentCompleted, func(a *domain.Appointment, now time.Time) error {
		return a.Complete(now)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, "MarkNoShow", id, domain.EventAppointmentNoShow, func(a *domain.Appointment, now time.Time) error {
		return a.MarkNoShow(now, s.loc)
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (CancelResult, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return CancelResult{}, validationError("actor id is required")
	}
	if !actor.Role.Valid() {
		return CancelResult{}, validationError("actor role must be requester, provider or system")
	}
	if len(reason) > 2000 {
		return CancelResult{}, validationError("reason too long")
	}

	var refund int64
	appt, err := s.transition(ctx, "Cancel", id, domain.EventAppointmentCancelled, func(a *domain.Appointment, now time.Time) error {
		amount, err := a.Cancel(actor, strings.TrimSpace(reason), now, s.loc, s.policy)
		refund = amount
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}
	s.rec.Refund(refund)
	return CancelResult{Appointment: appt, RefundAmount: refund}, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (domain.Appointment, error) {
	if !status.Valid() {
		return domain.Appointment{}, validationError("payment_status must be one of pending, paid, failed, refunded")
	}
	return s.transition(ctx, "UpdatePaymentStatus", id, domain.EventPaymentUpdated, func(a *domain.Appointment, now time.Time) error {
		if status == domain.PaymentRefunded {
			return fmt.Errorf("%w: refunds settle through ConfirmRefund", domain.ErrInvalidTransition)
		}
		if a.PaymentStatus == domain.PaymentRefunded {
			return fmt.Errorf("%w: payment already refunded", domain.ErrInvalidTransition)
		}
		if a.Cancellation != nil {
			return fmt.Errorf("%w: payment of a cancelled appointment is owned by its refund", domain.ErrInvalidTransition)
		}
		a.PaymentStatus = status
		return nil
	})
}

// ConfirmRefund is called once the payment collaborator has settled a
// pending refund.
func (s *Service) ConfirmRefund(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, "ConfirmRefund", id, domain.EventRefundSettled, func(a *domain.Appointment, now time.Time) error {
		return a.SettleRefund()
	})
}

// transition loads the appointment under its provider's lock, applies fn and
// persists the result together with an outbox event. Nothing is written when
// fn fails.
func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, eventType string, fn func(a *domain.Appointment, now time.Time) error) (appt domain.Appointment, err error) {
	ctx, done := s.begin(ctx, op, attribute.String("appointment_id", id.String()))
	defer func() { done(err) }()

	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.repo.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&a, s.now()); err != nil {
			return err
		}
		updated, err := tx.UpdateAppointment(ctx, a)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: slot already booked", domain.ErrSlotUnavailable)
			}
			return err
		}
		if err := s.appendEvent(ctx, tx, eventType, updated); err != nil {
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
