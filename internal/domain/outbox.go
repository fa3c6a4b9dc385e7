package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Event types double as Kafka topic names.
const (
	EventAppointmentBooked      = "consultation.appointment.booked.v1"
	EventAppointmentConfirmed   = "consultation.appointment.confirmed.v1"
	EventAppointmentStarted     = "consultation.appointment.started.v1"
	EventAppointmentCompleted   = "consultation.appointment.completed.v1"
	EventAppointmentCancelled   = "consultation.appointment.cancelled.v1"
	EventAppointmentRescheduled = "consultation.appointment.rescheduled.v1"
	EventAppointmentNoShow      = "consultation.appointment.no_show.v1"
	EventPaymentUpdated         = "consultation.appointment.payment_updated.v1"
	EventRefundSettled          = "consultation.appointment.refund_settled.v1"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and published asynchronously.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events"`

	ID          int64           `bun:"id,pk,autoincrement"`
	EventID     uuid.UUID       `bun:"event_id,type:uuid,notnull"`
	AggregateID string          `bun:"aggregate_id,notnull"`
	EventType   string          `bun:"event_type,notnull"`
	Payload     json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Traceparent string          `bun:"traceparent,nullzero"`
	Tracestate  string          `bun:"tracestate,nullzero"`
	CreatedAt   time.Time       `bun:"created_at,notnull"`
	PublishedAt *time.Time      `bun:"published_at"`
}

func (e *OutboxEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if e.EventID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.EventID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// NewAppointmentEvent snapshots appt as the event payload.
func NewAppointmentEvent(eventType string, appt Appointment) (OutboxEvent, error) {
	payload, err := json.Marshal(appt)
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		AggregateID: appt.ID.String(),
		EventType:   eventType,
		Payload:     payload,
	}, nil
}
