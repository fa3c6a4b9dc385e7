package domain

import (
	"math"
	"time"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

// RefundStatusFor derives the initial refund status from the computed amount.
func RefundStatusFor(amount int64) RefundStatus {
	if amount == 0 {
		return RefundProcessed
	}
	return RefundPending
}

type RefundPolicy struct {
	FullNotice    time.Duration
	PartialNotice time.Duration
	PartialRatio  float64
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		FullNotice:    24 * time.Hour,
		PartialNotice: 2 * time.Hour,
		PartialRatio:  0.5,
	}
}

// Amount returns the refundable share of amount given the hours left before
// the appointment. Partial refunds round down to the minor unit.
func (p RefundPolicy) Amount(amount int64, hoursUntil float64) int64 {
	if amount <= 0 {
		return 0
	}
	switch {
	case hoursUntil > p.FullNotice.Hours():
		return amount
	case hoursUntil > p.PartialNotice.Hours():
		return int64(math.Floor(float64(amount) * p.PartialRatio))
	default:
		return 0
	}
}

type Policy struct {
	CancelNotice     time.Duration
	RescheduleNotice time.Duration
	Refund           RefundPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		CancelNotice:     2 * time.Hour,
		RescheduleNotice: 24 * time.Hour,
		Refund:           DefaultRefundPolicy(),
	}
}

// Cancellable is true for any scheduled appointment, and for a confirmed one
// only while more than CancelNotice remains.
func (p Policy) Cancellable(s Status, hoursUntil float64) bool {
	return s == StatusScheduled || (s == StatusConfirmed && hoursUntil > p.CancelNotice.Hours())
}

// Reschedulable requires an active appointment with more than
// RescheduleNotice remaining, regardless of which active status it is in.
func (p Policy) Reschedulable(s Status, hoursUntil float64) bool {
	return s.Active() && hoursUntil > p.RescheduleNotice.Hours()
}
