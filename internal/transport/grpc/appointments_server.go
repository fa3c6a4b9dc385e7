package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"consultd/internal/domain"
	"consultd/internal/rpc/consultv1"
	"consultd/internal/service/appointments"
	"consultd/internal/store"
)

const errorDomain = "consultd"

type AppointmentsServer struct {
	consultv1.UnimplementedAppointmentsServiceServer

	svc appointmentsService
	log *slog.Logger
}

type appointmentsService interface {
	Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, in appointments.ListInput) ([]domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Start(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (appointments.CancelResult, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	AvailableSlots(ctx context.Context, providerID string, date time.Time) ([]domain.Window, error)
	IsSlotFree(ctx context.Context, providerID string, date time.Time, clock string) (bool, error)
	UpsertProvider(ctx context.Context, in appointments.ProviderInput) (domain.Provider, error)
	SetAvailability(ctx context.Context, providerID string, weekly domain.WeeklyAvailability) (domain.Provider, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (domain.Appointment, error)
	ConfirmRefund(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	NoShowEligible(a domain.Appointment) bool
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) BookAppointment(ctx context.Context, req *consultv1.BookAppointmentRequest) (*consultv1.AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("requester_id", req.RequesterID))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	appt, err := s.svc.Book(ctx, appointments.BookInput{
		ProviderID:      req.ProviderID,
		RequesterID:     req.RequesterID,
		Date:            date,
		Time:            req.Time,
		Channel:         domain.Channel(req.Channel),
		DurationMinutes: int(req.DurationMinutes),
		MeetingLink:     req.MeetingLink,
		Location:        req.Location,
		Notes:           req.Notes,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(log, "appointment booking failed", err,
			slog.String("provider_id", req.ProviderID),
			slog.String("requester_id", req.RequesterID),
			slog.String("date", req.Date),
			slog.String("time", req.Time),
		)
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.String("requester_id", appt.RequesterID),
		slog.String("date", req.Date),
		slog.String("time", appt.Time),
	)
	return &consultv1.AppointmentResponse{Appointment: s.toWireAppointment(appt)}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	id, err := appointmentID(log, req)
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, s.fail(log, "appointment get failed", err, slog.String("appointment_id", id.String()))
	}
	return &consultv1.AppointmentResponse{Appointment: s.toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *consultv1.ListAppointmentsRequest) (*consultv1.ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in := appointments.ListInput{
		ProviderID:  req.ProviderID,
		RequesterID: req.RequesterID,
		Limit:       int(req.Limit),
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_date"))
			return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
		}
		in.Date = &date
	}
	for _, st := range req.Statuses {
		in.Statuses = append(in.Statuses, domain.Status(st))
	}

	appts, err := s.svc.List(ctx, in)
	if err != nil {
		return nil, s.fail(log, "appointments list failed", err,
			slog.String("provider_id", req.ProviderID),
			slog.String("requester_id", req.RequesterID),
		)
	}

	out := make([]*consultv1.Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, s.toWireAppointment(a))
	}

	log.Debug(
		"appointments listed",
		slog.String("provider_id", req.ProviderID),
		slog.String("requester_id", req.RequesterID),
		slog.Int("count", len(out)),
	)
	return &consultv1.ListAppointmentsResponse{Appointments: out}, nil
}

func (s *AppointmentsServer) ConfirmAppointment(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	return s.transition(ctx, "ConfirmAppointment", "appointment confirmed", req, s.svc.Confirm)
}

func (s *AppointmentsServer) StartAppointment(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	return s.transition(ctx, "StartAppointment", "appointment started", req, s.svc.Start)
}

func (s *AppointmentsServer) CompleteAppointment(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	return s.transition(ctx, "CompleteAppointment", "appointment completed", req, s.svc.Complete)
}

func (s *AppointmentsServer) MarkNoShow(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	return s.transition(ctx, "MarkNoShow", "appointment marked no-show", req, s.svc.MarkNoShow)
}

func (s *AppointmentsServer) ConfirmRefund(ctx context.Context, req *consultv1.AppointmentRequest) (*consultv1.AppointmentResponse, error) {
	return s.transition(ctx, "ConfirmRefund", "refund settled", req, s.svc.ConfirmRefund)
}

func (s *AppointmentsServer) transition(ctx context.Context, rpc, msg string, req *consultv1.AppointmentRequest, fn func(context.Context, uuid.UUID) (domain.Appointment, error)) (*consultv1.AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	id, err := appointmentID(log, req)
	if err != nil {
		return nil, err
	}
	appt, err := fn(ctx, id)
	if err != nil {
		return nil, s.fail(log, "appointment transition failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info(msg, slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return &consultv1.AppointmentResponse{Appointment: s.toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *consultv1.CancelAppointmentRequest) (*consultv1.CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("actor_id", req.ActorID))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	actor := domain.Actor{ID: req.ActorID, Role: domain.ActorRole(req.ActorRole)}
	res, err := s.svc.Cancel(ctx, id, actor, req.Reason)
	if err != nil {
		return nil, s.fail(log, "appointment cancel failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("actor_id", req.ActorID),
			slog.String("actor_role", req.ActorRole),
		)
	}

	log.Info(
		"appointment cancelled",
		slog.String("appointment_id", id.String()),
		slog.String("actor_id", actor.ID),
		slog.String("actor_role", string(actor.Role)),
		slog.Int64("refund_amount", res.RefundAmount),
	)
	return &consultv1.CancelAppointmentResponse{
		Appointment:  s.toWireAppointment(res.Appointment),
		RefundAmount: res.RefundAmount,
	}, nil
}

func (s *AppointmentsServer) RescheduleAppointment(ctx context.Context, req *consultv1.RescheduleAppointmentRequest) (*consultv1.AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	date, err := parseDate(req.NewDate)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("appointment_id", id.String()))
		return nil, status.Error(codes.InvalidArgument, "new_date must be YYYY-MM-DD")
	}

	appt, err := s.svc.Reschedule(ctx, id, date, req.NewTime)
	if err != nil {
		return nil, s.fail(log, "appointment reschedule failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("new_date", req.NewDate),
			slog.String("new_time", req.NewTime),
		)
	}

	log.Info(
		"appointment rescheduled",
		slog.String("appointment_id", id.String()),
		slog.String("new_date", req.NewDate),
		slog.String("new_time", appt.Time),
	)
	return &consultv1.AppointmentResponse{Appointment: s.toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) ListAvailableSlots(ctx context.Context, req *consultv1.ListAvailableSlotsRequest) (*consultv1.ListAvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAvailableSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	windows, err := s.svc.AvailableSlots(ctx, req.ProviderID, date)
	if err != nil {
		return nil, s.fail(log, "available slots failed", err, slog.String("provider_id", req.ProviderID))
	}

	out := make([]*consultv1.Window, 0, len(windows))
	for _, w := range windows {
		out = append(out, &consultv1.Window{Start: w.Start, End: w.End})
	}
	log.Debug("available slots listed", slog.String("provider_id", req.ProviderID), slog.Int("count", len(out)))
	return &consultv1.ListAvailableSlotsResponse{Slots: out}, nil
}

func (s *AppointmentsServer) CheckSlot(ctx context.Context, req *consultv1.CheckSlotRequest) (*consultv1.CheckSlotResponse, error) {
	log := s.log.With(slog.String("rpc", "CheckSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	free, err := s.svc.IsSlotFree(ctx, req.ProviderID, date, req.Time)
	if err != nil {
		return nil, s.fail(log, "slot check failed", err, slog.String("provider_id", req.ProviderID))
	}
	return &consultv1.CheckSlotResponse{Available: free}, nil
}

func (s *AppointmentsServer) UpsertProvider(ctx context.Context, req *consultv1.UpsertProviderRequest) (*consultv1.ProviderResponse, error) {
	log := s.log.With(slog.String("rpc", "UpsertProvider"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	weekly, err := fromWireAvailability(req.Availability)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_weekday"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	p, err := s.svc.UpsertProvider(ctx, appointments.ProviderInput{
		ProviderID:   req.ProviderID,
		BaseAmount:   req.BaseAmount,
		Availability: weekly,
	})
	if err != nil {
		return nil, s.fail(log, "provider upsert failed", err, slog.String("provider_id", req.ProviderID))
	}

	log.Info("provider upserted", slog.String("provider_id", p.ID), slog.Int64("base_amount", p.BaseAmount))
	return &consultv1.ProviderResponse{Provider: toWireProvider(p)}, nil
}

func (s *AppointmentsServer) SetAvailability(ctx context.Context, req *consultv1.SetAvailabilityRequest) (*consultv1.ProviderResponse, error) {
	log := s.log.With(slog.String("rpc", "SetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	weekly, err := fromWireAvailability(req.Availability)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_weekday"), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	p, err := s.svc.SetAvailability(ctx, req.ProviderID, weekly)
	if err != nil {
		return nil, s.fail(log, "availability update failed", err, slog.String("provider_id", req.ProviderID))
	}

	log.Info("availability updated", slog.String("provider_id", p.ID))
	return &consultv1.ProviderResponse{Provider: toWireProvider(p)}, nil
}

func (s *AppointmentsServer) UpdatePaymentStatus(ctx context.Context, req *consultv1.UpdatePaymentStatusRequest) (*consultv1.AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdatePaymentStatus"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	appt, err := s.svc.UpdatePaymentStatus(ctx, id, domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		return nil, s.fail(log, "payment status update failed", err,
			slog.String("appointment_id", id.String()),
			slog.String("payment_status", req.PaymentStatus),
		)
	}

	log.Info("payment status updated", slog.String("appointment_id", id.String()), slog.String("payment_status", string(appt.PaymentStatus)))
	return &consultv1.AppointmentResponse{Appointment: s.toWireAppointment(appt)}, nil
}

func appointmentID(log *slog.Logger, req *consultv1.AppointmentRequest) (uuid.UUID, error) {
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	return id, nil
}

// fail logs err at a level matching its kind and converts it to a status.
// Expected business rejections carry an ErrorInfo reason.
func (s *AppointmentsServer) fail(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, domain.ErrInvalidAppointmentData):
		log.Warn("invalid request", args...)
		return withReason(codes.InvalidArgument, "INVALID_APPOINTMENT_DATA", "The request contains invalid appointment data.")
	case errors.Is(err, domain.ErrSlotUnavailable):
		log.Info("slot unavailable", args...)
		return withReason(codes.FailedPrecondition, "SLOT_UNAVAILABLE", "That slot is not available. Pick a different time.")
	case errors.Is(err, domain.ErrNotCancellable):
		log.Info("cancellation rejected", args...)
		return withReason(codes.FailedPrecondition, "NOT_CANCELLABLE", "This appointment can no longer be cancelled.")
	case errors.Is(err, domain.ErrTooLate):
		log.Info("reschedule rejected", args...)
		return withReason(codes.FailedPrecondition, "TOO_LATE", "It is too late to reschedule this appointment.")
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Info("transition rejected", args...)
		return withReason(codes.FailedPrecondition, "INVALID_TRANSITION", "The appointment is not in a state that allows this action.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return withReason(codes.FailedPrecondition, "IDEMPOTENCY_CONFLICT", "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn(msg, args...)
		return status.FromContextError(err).Err()
	default:
		log.Error(msg, args...)
		return status.Error(codes.Internal, "internal error")
	}
}

func withReason(code codes.Code, reason, msg string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// Reason extracts the ErrorInfo reason attached to a status error.
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == errorDomain {
			return info.Reason
		}
	}
	return ""
}
