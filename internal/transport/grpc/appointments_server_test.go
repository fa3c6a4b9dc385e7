package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"consultd/internal/domain"
	"consultd/internal/rpc/consultv1"
	"consultd/internal/service/appointments"
	"consultd/internal/store"
)

// fakeAppointmentsService panics on any method without a configured func.
type fakeAppointmentsService struct {
	appointmentsService

	bookFn   func(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
	getFn    func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	cancelFn func(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (appointments.CancelResult, error)
}

func (f *fakeAppointmentsService) Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, in)
}

func (f *fakeAppointmentsService) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentsService) Cancel(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (appointments.CancelResult, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, id, actor, reason)
}

func (f *fakeAppointmentsService) NoShowEligible(a domain.Appointment) bool { return false }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey without metadata = %q, want empty", got)
	}
}

func TestBookAppointment_RejectsBadDate(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		bookFn: func(ctx context.Context, in appointments.BookInput) (domain.Appointment, error) {
			t.Fatalf("service must not be called")
			return domain.Appointment{}, nil
		},
	}, quietLogger())

	_, err := srv.BookAppointment(context.Background(), &consultv1.BookAppointmentRequest{
		ProviderID:  "p1",
		RequesterID: "r1",
		Date:        "03/02/2026",
		Time:        "10:00",
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}

	_, err = srv.BookAppointment(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestBookAppointment_PassesInputAndIdempotencyKey(t *testing.T) {
	var got appointments.BookInput
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		bookFn: func(ctx context.Context, in appointments.BookInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{
				ID:              uuid.New(),
				ProviderID:      in.ProviderID,
				RequesterID:     in.RequesterID,
				Date:            in.Date,
				Time:            in.Time,
				DurationMinutes: 45,
				Channel:         in.Channel,
				Status:          domain.StatusScheduled,
				PaymentAmount:   2000,
				PaymentStatus:   domain.PaymentPending,
			}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.BookAppointment(ctx, &consultv1.BookAppointmentRequest{
		ProviderID:  "p1",
		RequesterID: "r1",
		Date:        "2026-03-02",
		Time:        "10:00",
		Channel:     "phone",
	})
	if err != nil {
		t.Fatalf("BookAppointment error: %v", err)
	}

	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency key = %q, want k1", got.IdempotencyKey)
	}
	if !got.Date.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", got.Date)
	}
	if got.Channel != domain.ChannelPhone {
		t.Fatalf("channel = %q", got.Channel)
	}
	if resp.Appointment.Date != "2026-03-02" || resp.Appointment.Status != "scheduled" {
		t.Fatalf("appointment = %+v", resp.Appointment)
	}
	if resp.Appointment.Cancellation != nil || resp.Appointment.ConfirmedAt != nil {
		t.Fatalf("unset optional fields must stay nil")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantCode   codes.Code
		wantReason string
	}{
		{err: &appointments.ValidationError{}, wantCode: codes.InvalidArgument},
		{err: fmt.Errorf("%w: bad", domain.ErrInvalidAppointmentData), wantCode: codes.InvalidArgument, wantReason: "INVALID_APPOINTMENT_DATA"},
		{err: fmt.Errorf("%w: taken", domain.ErrSlotUnavailable), wantCode: codes.FailedPrecondition, wantReason: "SLOT_UNAVAILABLE"},
		{err: domain.ErrNotCancellable, wantCode: codes.FailedPrecondition, wantReason: "NOT_CANCELLABLE"},
		{err: domain.ErrTooLate, wantCode: codes.FailedPrecondition, wantReason: "TOO_LATE"},
		{err: domain.ErrInvalidTransition, wantCode: codes.FailedPrecondition, wantReason: "INVALID_TRANSITION"},
		{err: store.ErrIdempotencyConflict, wantCode: codes.FailedPrecondition, wantReason: "IDEMPOTENCY_CONFLICT"},
		{err: store.ErrNotFound, wantCode: codes.NotFound},
		{err: context.DeadlineExceeded, wantCode: codes.DeadlineExceeded},
		{err: errors.New("connection reset"), wantCode: codes.Internal},
	}

	for _, tc := range cases {
		srv := NewAppointmentsServer(&fakeAppointmentsService{
			cancelFn: func(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (appointments.CancelResult, error) {
				return appointments.CancelResult{}, tc.err
			},
		}, quietLogger())

		_, err := srv.CancelAppointment(context.Background(), &consultv1.CancelAppointmentRequest{
			AppointmentID: uuid.NewString(),
			ActorID:       "r1",
			ActorRole:     "requester",
		})
		if status.Code(err) != tc.wantCode {
			t.Fatalf("%v: code = %s, want %s", tc.err, status.Code(err), tc.wantCode)
		}
		if got := Reason(err); got != tc.wantReason {
			t.Fatalf("%v: reason = %q, want %q", tc.err, got, tc.wantReason)
		}
	}
}

func TestErrorMapping_InternalHidesDetails(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, errors.New("pq: password authentication failed")
		},
	}, quietLogger())

	_, err := srv.GetAppointment(context.Background(), &consultv1.AppointmentRequest{AppointmentID: uuid.NewString()})
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Fatalf("status = %s %q, want Internal \"internal error\"", st.Code(), st.Message())
	}
}

func TestGetAppointment_RejectsBadUUID(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.GetAppointment(context.Background(), &consultv1.AppointmentRequest{AppointmentID: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestFromWireAvailability_RejectsUnknownWeekday(t *testing.T) {
	_, err := fromWireAvailability(map[string][]consultv1.Window{"funday": {{Start: "09:00", End: "10:00"}}})
	if err == nil {
		t.Fatalf("expected error for unknown weekday")
	}

	got, err := fromWireAvailability(map[string][]consultv1.Window{"monday": {{Start: "09:00", End: "10:00"}}})
	if err != nil {
		t.Fatalf("fromWireAvailability error: %v", err)
	}
	if w := got.WindowsFor(domain.Monday); len(w) != 1 || w[0].Start != "09:00" {
		t.Fatalf("monday windows = %+v", w)
	}
}
