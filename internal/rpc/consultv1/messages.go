// Package consultv1 defines the consultd.v1 AppointmentsService wire types
// and service descriptor. Messages travel as JSON over gRPC.
package consultv1

import "google.golang.org/protobuf/types/known/timestamppb"

type Appointment struct {
	ID              string                 `json:"id"`
	ProviderID      string                 `json:"provider_id"`
	RequesterID     string                 `json:"requester_id"`
	Date            string                 `json:"date"`
	Time            string                 `json:"time"`
	DurationMinutes int32                  `json:"duration_minutes"`
	Channel         string                 `json:"channel"`
	MeetingLink     string                 `json:"meeting_link,omitempty"`
	Location        string                 `json:"location,omitempty"`
	Status          string                 `json:"status"`
	PaymentAmount   int64                  `json:"payment_amount"`
	PaymentStatus   string                 `json:"payment_status"`
	Cancellation    *Cancellation          `json:"cancellation,omitempty"`
	Notes           map[string]any         `json:"notes,omitempty"`
	NoShowEligible  bool                   `json:"no_show_eligible"`
	ConfirmedAt     *timestamppb.Timestamp `json:"confirmed_at,omitempty"`
	StartedAt       *timestamppb.Timestamp `json:"started_at,omitempty"`
	CompletedAt     *timestamppb.Timestamp `json:"completed_at,omitempty"`
	NoShowAt        *timestamppb.Timestamp `json:"no_show_at,omitempty"`
	RescheduledAt   *timestamppb.Timestamp `json:"rescheduled_at,omitempty"`
	CreatedAt       *timestamppb.Timestamp `json:"created_at,omitempty"`
	UpdatedAt       *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

type Cancellation struct {
	CancelledByID   string                 `json:"cancelled_by_id"`
	CancelledByRole string                 `json:"cancelled_by_role"`
	Reason          string                 `json:"reason,omitempty"`
	CancelledAt     *timestamppb.Timestamp `json:"cancelled_at"`
	RefundAmount    int64                  `json:"refund_amount"`
	RefundStatus    string                 `json:"refund_status"`
}

// Window is a half-open HH:MM range.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Provider availability is keyed by lowercase weekday name.
type Provider struct {
	ID           string                 `json:"id"`
	BaseAmount   int64                  `json:"base_amount"`
	Availability map[string][]Window    `json:"availability"`
	CreatedAt    *timestamppb.Timestamp `json:"created_at,omitempty"`
	UpdatedAt    *timestamppb.Timestamp `json:"updated_at,omitempty"`
}

// BookAppointmentRequest dates are YYYY-MM-DD and times HH:MM. The
// idempotency key travels in the idempotency-key metadata header.
type BookAppointmentRequest struct {
	ProviderID      string         `json:"provider_id"`
	RequesterID     string         `json:"requester_id"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	Channel         string         `json:"channel"`
	DurationMinutes int32          `json:"duration_minutes,omitempty"`
	MeetingLink     string         `json:"meeting_link,omitempty"`
	Location        string         `json:"location,omitempty"`
	Notes           map[string]any `json:"notes,omitempty"`
}

type AppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type ListAppointmentsRequest struct {
	ProviderID  string   `json:"provider_id,omitempty"`
	RequesterID string   `json:"requester_id,omitempty"`
	Date        string   `json:"date,omitempty"`
	Statuses    []string `json:"statuses,omitempty"`
	Limit       int32    `json:"limit,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
	Reason        string `json:"reason,omitempty"`
}

type CancelAppointmentResponse struct {
	Appointment  *Appointment `json:"appointment"`
	RefundAmount int64        `json:"refund_amount"`
}

type RescheduleAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
}

type ListAvailableSlotsRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type ListAvailableSlotsResponse struct {
	Slots []*Window `json:"slots"`
}

type CheckSlotRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type CheckSlotResponse struct {
	Available bool `json:"available"`
}

type UpsertProviderRequest struct {
	ProviderID   string              `json:"provider_id"`
	BaseAmount   int64               `json:"base_amount"`
	Availability map[string][]Window `json:"availability,omitempty"`
}

type SetAvailabilityRequest struct {
	ProviderID   string              `json:"provider_id"`
	Availability map[string][]Window `json:"availability"`
}

type ProviderResponse struct {
	Provider *Provider `json:"provider"`
}

type UpdatePaymentStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	PaymentStatus string `json:"payment_status"`
}
