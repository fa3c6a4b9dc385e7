package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"consultd/internal/domain"
)

type ListFilter struct {
	ProviderID  string
	RequesterID string
	Date        *time.Time
	Statuses    []domain.Status
	Limit       int
}

type AppointmentRepository interface {
	// InProviderTransaction serialises fn against every other transaction for
	// the same provider. Writes made through tx commit only if fn returns nil.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx ProviderTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, filter ListFilter) ([]domain.Appointment, error)
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)
	SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error)
	ActiveSlotTimes(ctx context.Context, providerID string, date time.Time) ([]string, error)
}

type ProviderTx interface {
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)
	UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error)

	// GetAppointment locks the row for the rest of the transaction.
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	AppendEvent(ctx context.Context, ev domain.OutboxEvent) error
}

type OutboxRepository interface {
	// PublishPending hands up to limit unpublished events to fn in id order and
	// marks them published when fn succeeds. It returns the number published.
	PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, events []domain.OutboxEvent) error) (int, error)
}
