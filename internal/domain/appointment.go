package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active statuses hold a provider slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// ActiveStatuses is the set used by slot conflict checks and the
// appointments_active_slot index.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

type Channel string

const (
	ChannelVideo    Channel = "video"
	ChannelInPerson Channel = "in-person"
	ChannelPhone    Channel = "phone"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelVideo, ChannelInPerson, ChannelPhone:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type ActorRole string

const (
	RoleRequester ActorRole = "requester"
	RoleProvider  ActorRole = "provider"
	RoleSystem    ActorRole = "system"
)

func (r ActorRole) Valid() bool {
	return r == RoleRequester || r == RoleProvider || r == RoleSystem
}

// Actor identifies who asked for an operation. Authorization happens
// before the engine is called.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

type Cancellation struct {
	CancelledBy  Actor        `json:"cancelled_by"`
	Reason       string       `json:"reason,omitempty"`
	CancelledAt  time.Time    `json:"cancelled_at"`
	RefundAmount int64        `json:"refund_amount"`
	RefundStatus RefundStatus `json:"refund_status"`
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProviderID  string    `bun:"provider_id,notnull" json:"provider_id"`
	RequesterID string    `bun:"requester_id,notnull" json:"requester_id"`

	// Date is a calendar day stored as UTC midnight; Time is "HH:MM" in the
	// reference zone.
	Date            time.Time `bun:"date,type:date,notnull" json:"date"`
	Time            string    `bun:"slot_time,notnull" json:"time"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`

	Channel     Channel `bun:"channel,notnull" json:"channel"`
	MeetingLink string  `bun:"meeting_link,nullzero" json:"meeting_link,omitempty"`
	Location    string  `bun:"location,nullzero" json:"location,omitempty"`

	Status        Status        `bun:"status,notnull" json:"status"`
	PaymentAmount int64         `bun:"payment_amount,notnull" json:"payment_amount"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	Cancellation  *Cancellation `bun:"cancellation,type:jsonb,nullzero" json:"cancellation,omitempty"`

	Notes map[string]any `bun:"notes,type:jsonb,nullzero" json:"notes,omitempty"`

	ConfirmedAt *time.Time `bun:"confirmed_at" json:"confirmed_at,omitempty"`
	StartedAt   *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	NoShowAt    *time.Time `bun:"no_show_at" json:"no_show_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	// RescheduledAt is set by the most recent MoveTo.
	RescheduledAt *time.Time `bun:"rescheduled_at" json:"rescheduled_at,omitempty"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// CalendarDate truncates t to its calendar day, keeping t's own year, month
// and day, and returns it as UTC midnight.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartsAt resolves Date and Time to an instant in loc. An unparsable Time
// yields midnight of Date.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	minutes, _ := ParseClock(a.Time)
	y, m, d := a.Date.UTC().Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	return a.StartsAt(loc).Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// HoursUntil is negative once the appointment has started.
func (a *Appointment) HoursUntil(now time.Time, loc *time.Location) float64 {
	return a.StartsAt(loc).Sub(now).Hours()
}

// NoShowEligible reports whether an active appointment's start time has
// passed without it being started.
func (a *Appointment) NoShowEligible(now time.Time, loc *time.Location) bool {
	return a.Status.Active() && !now.Before(a.StartsAt(loc))
}

func (a *Appointment) Confirm(now time.Time) error {
	if a.Status != StatusScheduled {
		return transitionError(a.Status, StatusConfirmed)
	}
	t := now.UTC()
	a.Status = StatusConfirmed
	a.ConfirmedAt = &t
	return nil
}

func (a *Appointment) Start(now time.Time) error {
	if !a.Status.Active() {
		return transitionError(a.Status, StatusInProgress)
	}
	t := now.UTC()
	a.Status = StatusInProgress
	a.StartedAt = &t
	return nil
}

func (a *Appointment) Complete(now time.Time) error {
	if a.Status != StatusInProgress {
		return transitionError(a.Status, StatusCompleted)
	}
	t := now.UTC()
	a.Status = StatusCompleted
	a.CompletedAt = &t
	return nil
}

// Cancel applies the cancellability guard, computes the refund and records
// the cancellation. It returns the refund amount.
func (a *Appointment) Cancel(by Actor, reason string, now time.Time, loc *time.Location, p Policy) (int64, error) {
	if !a.Status.Active() {
		return 0, transitionError(a.Status, StatusCancelled)
	}
	hours := a.HoursUntil(now, loc)
	if !p.Cancellable(a.Status, hours) {
		return 0, fmt.Errorf("%w: %.2f hours before start", ErrNotCancellable, hours)
	}

	refund := p.Refund.Amount(a.PaymentAmount, hours)
	a.Status = StatusCancelled
	a.Cancellation = &Cancellation{
		CancelledBy:  by,
		Reason:       reason,
		CancelledAt:  now.UTC(),
		RefundAmount: refund,
		RefundStatus: RefundStatusFor(refund),
	}
	return refund, nil
}

func (a *Appointment) MarkNoShow(now time.Time, loc *time.Location) error {
	if !a.Status.Active() {
		return transitionError(a.Status, StatusNoShow)
	}
	if !a.NoShowEligible(now, loc) {
		return fmt.Errorf("%w: appointment has not started yet", ErrInvalidTransition)
	}
	t := now.UTC()
	a.Status = StatusNoShow
	a.NoShowAt = &t
	return nil
}

// CheckReschedulable applies the status and notice guards of a reschedule.
// Slot validity is checked separately against the store.
func (a *Appointment) CheckReschedulable(now time.Time, loc *time.Location, p Policy) error {
	if !a.Status.Active() {
		return fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidTransition, a.Status)
	}
	hours := a.HoursUntil(now, loc)
	if !p.Reschedulable(a.Status, hours) {
		return fmt.Errorf("%w: %.2f hours before start", ErrTooLate, hours)
	}
	return nil
}

// MoveTo changes the slot only. Status, payment and id are untouched.
func (a *Appointment) MoveTo(date time.Time, clock string, now time.Time) {
	a.Date = CalendarDate(date)
	a.Time = clock
	t := now.UTC()
	a.RescheduledAt = &t
}

// SettleRefund marks a pending refund as processed by the payment collaborator.
func (a *Appointment) SettleRefund() error {
	if a.Status != StatusCancelled || a.Cancellation == nil {
		return fmt.Errorf("%w: no cancellation to settle", ErrInvalidTransition)
	}
	if a.Cancellation.RefundStatus != RefundPending {
		return fmt.Errorf("%w: refund already %s", ErrInvalidTransition, a.Cancellation.RefundStatus)
	}
	if a.PaymentStatus == PaymentFailed {
		return fmt.Errorf("%w: cannot refund a failed payment", ErrInvalidTransition)
	}
	a.Cancellation.RefundStatus = RefundProcessed
	a.PaymentStatus = PaymentRefunded
	return nil
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
