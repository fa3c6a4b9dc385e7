package appointments

import "consultd/internal/domain"

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidAppointmentData
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}
