package domain

import "errors"

var (
	ErrInvalidAppointmentData = errors.New("invalid appointment data")
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNotCancellable         = errors.New("appointment not cancellable")
	ErrTooLate                = errors.New("too late to reschedule")
)
