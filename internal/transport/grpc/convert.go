package grpc

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"consultd/internal/domain"
	"consultd/internal/rpc/consultv1"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func (s *AppointmentsServer) toWireAppointment(a domain.Appointment) *consultv1.Appointment {
	out := &consultv1.Appointment{
		ID:              a.ID.String(),
		ProviderID:      a.ProviderID,
		RequesterID:     a.RequesterID,
		Date:            a.Date.Format(dateLayout),
		Time:            a.Time,
		DurationMinutes: int32(a.DurationMinutes),
		Channel:         string(a.Channel),
		MeetingLink:     a.MeetingLink,
		Location:        a.Location,
		Status:          string(a.Status),
		PaymentAmount:   a.PaymentAmount,
		PaymentStatus:   string(a.PaymentStatus),
		Notes:           a.Notes,
		NoShowEligible:  s.svc.NoShowEligible(a),
		ConfirmedAt:     optionalTimestamp(a.ConfirmedAt),
		StartedAt:       optionalTimestamp(a.StartedAt),
		CompletedAt:     optionalTimestamp(a.CompletedAt),
		NoShowAt:        optionalTimestamp(a.NoShowAt),
		RescheduledAt:   optionalTimestamp(a.RescheduledAt),
		CreatedAt:       timestamppb.New(a.CreatedAt),
		UpdatedAt:       timestamppb.New(a.UpdatedAt),
	}
	if c := a.Cancellation; c != nil {
		out.Cancellation = &consultv1.Cancellation{
			CancelledByID:   c.CancelledBy.ID,
			CancelledByRole: string(c.CancelledBy.Role),
			Reason:          c.Reason,
			CancelledAt:     timestamppb.New(c.CancelledAt),
			RefundAmount:    c.RefundAmount,
			RefundStatus:    string(c.RefundStatus),
		}
	}
	return out
}

func optionalTimestamp(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}

func toWireProvider(p domain.Provider) *consultv1.Provider {
	availability := make(map[string][]consultv1.Window, len(p.Availability))
	for day, windows := range p.Availability {
		out := make([]consultv1.Window, 0, len(windows))
		for _, w := range windows {
			out = append(out, consultv1.Window{Start: w.Start, End: w.End})
		}
		availability[string(day)] = out
	}
	return &consultv1.Provider{
		ID:           p.ID,
		BaseAmount:   p.BaseAmount,
		Availability: availability,
		CreatedAt:    timestamppb.New(p.CreatedAt),
		UpdatedAt:    timestamppb.New(p.UpdatedAt),
	}
}

func fromWireAvailability(in map[string][]consultv1.Window) (domain.WeeklyAvailability, error) {
	out := make(domain.WeeklyAvailability, len(in))
	for day, windows := range in {
		wd := domain.Weekday(day)
		if !wd.Valid() {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}
		converted := make([]domain.Window, 0, len(windows))
		for _, w := range windows {
			converted = append(converted, domain.Window{Start: w.Start, End: w.End})
		}
		out[wd] = converted
	}
	return out, nil
}
