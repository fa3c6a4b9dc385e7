package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"consultd/internal/availability"
	"consultd/internal/domain"
	"consultd/internal/store"
	"consultd/internal/telemetry"
)

type Service struct {
	repo      store.AppointmentRepository
	now       func() time.Time
	loc       *time.Location
	policy    domain.Policy
	durations DurationBounds
	locker    SlotLocker
	rec       Recorder
	tracer    trace.Tracer
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		now:       time.Now,
		loc:       time.UTC,
		policy:    domain.DefaultPolicy(),
		durations: DurationBounds{Min: 15, Max: 120, Default: 45},
		locker:    noopLocker{},
		rec:       noopRecorder{},
		tracer:    defaultTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookInput struct {
	ProviderID      string
	RequesterID     string
	Date            time.Time
	Time            string
	Channel         domain.Channel
	DurationMinutes int
	MeetingLink     string
	Location        string
	Notes           map[string]any
	IdempotencyKey  string
}

func (s *Service) Book(ctx context.Context, in BookInput) (appt domain.Appointment, err error) {
	ctx, done := s.begin(ctx, "Book",
		attribute.String("provider_id", in.ProviderID),
		attribute.String("slot_time", in.Time),
	)
	defer func() { done(err) }()

	appt, err = s.newAppointment(in)
	if err != nil {
		return domain.Appointment{}, err
	}
	// A keyed replay returns the original booking even once its slot has passed.
	past := !appt.StartsAt(s.loc).After(s.now())
	if past && appt.ID == uuid.Nil {
		return domain.Appointment{}, errPastBooking
	}

	release, err := s.lockSlot(ctx, appt.ProviderID, appt.Date, appt.Time)
	if err != nil {
		return domain.Appointment{}, err
	}
	defer release()

	var out domain.Appointment
	err = s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.ProviderTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		if past {
			return errPastBooking
		}

		p, err := tx.GetProvider(ctx, appt.ProviderID)
		if err != nil {
			return fmt.Errorf("provider %s: %w", appt.ProviderID, err)
		}
		if err := s.checkSlot(ctx, tx, p, appt.Date, appt.Time, uuid.Nil); err != nil {
			return err
		}

		appt.PaymentAmount = p.BaseAmount
		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: slot already booked", domain.ErrSlotUnavailable)
			}
			return err
		}
		if err := s.appendEvent(ctx, tx, domain.EventAppointmentBooked, created); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (s *Service) newAppointment(in BookInput) (domain.Appointment, error) {
	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		return domain.Appointment{}, validationError("provider_id is required")
	}
	requesterID := strings.TrimSpace(in.RequesterID)
	if requesterID == "" {
		return domain.Appointment{}, validationError("requester_id is required")
	}
	if in.Date.IsZero() {
		return domain.Appointment{}, validationError("date is required")
	}
	if _, err := domain.ParseClock(in.Time); err != nil {
		return domain.Appointment{}, validationError("time must be HH:MM")
	}
	if !in.Channel.Valid() {
		return domain.Appointment{}, validationError("channel must be one of video, in-person, phone")
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = s.durations.Default
	}
	if duration < s.durations.Min || duration > s.durations.Max {
		return domain.Appointment{}, validationError(fmt.Sprintf("duration must be between %d and %d minutes", s.durations.Min, s.durations.Max))
	}

	meetingLink := strings.TrimSpace(in.MeetingLink)
	location := strings.TrimSpace(in.Location)
	switch in.Channel {
	case domain.ChannelVideo:
		if meetingLink == "" {
			return domain.Appointment{}, validationError("meeting_link is required for video consultations")
		}
	case domain.ChannelInPerson:
		if location == "" {
			return domain.Appointment{}, validationError("location is required for in-person consultations")
		}
	}

	appt := domain.Appointment{
		ProviderID:      providerID,
		RequesterID:     requesterID,
		Date:            domain.CalendarDate(in.Date),
		Time:            in.Time,
		DurationMinutes: duration,
		Channel:         in.Channel,
		MeetingLink:     meetingLink,
		Location:        location,
		Status:          domain.StatusScheduled,
		PaymentStatus:   domain.PaymentPending,
		Notes:           in.Notes,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("consultd:book_appointment:"+requesterID+":"+key))
	}
	return appt, nil
}

var errPastBooking = validationError("appointment must start in the future")

// sameBooking reports whether a replayed request matches the stored booking.
// The slot is not compared once the booking has been rescheduled.
func sameBooking(existing, req domain.Appointment) bool {
	if existing.RescheduledAt == nil && (!existing.Date.Equal(req.Date) || existing.Time != req.Time) {
		return false
	}
	return existing.ProviderID == req.ProviderID &&
		existing.RequesterID == req.RequesterID &&
		existing.DurationMinutes == req.DurationMinutes &&
		existing.Channel == req.Channel &&
		existing.MeetingLink == req.MeetingLink &&
		existing.Location == req.Location
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.GetAppointment(ctx, id)
}

type ListInput struct {
	ProviderID  string
	RequesterID string
	Date        *time.Time
	Statuses    []domain.Status
	Limit       int
}

func (s *Service) List(ctx context.Context, in ListInput) ([]domain.Appointment, error) {
	if in.ProviderID == "" && in.RequesterID == "" {
		return nil, validationError("provider_id or requester_id is required")
	}
	for _, st := range in.Statuses {
		if !st.Valid() {
			return nil, validationError(fmt.Sprintf("unknown status %q", st))
		}
	}
	limit := in.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	filter := store.ListFilter{
		ProviderID:  in.ProviderID,
		RequesterID: in.RequesterID,
		Statuses:    in.Statuses,
		Limit:       limit,
	}
	if in.Date != nil {
		d := domain.CalendarDate(*in.Date)
		filter.Date = &d
	}
	return s.repo.ListAppointments(ctx, filter)
}

// NoShowEligible evaluates lazily what a background sweeper would otherwise
// mark: the start time has passed and the appointment is still active.
func (s *Service) NoShowEligible(a domain.Appointment) bool {
	return a.NoShowEligible(s.now(), s.loc)
}

func (s *Service) HoursUntil(a domain.Appointment) float64 {
	return a.HoursUntil(s.now(), s.loc)
}

type ProviderInput struct {
	ProviderID   string
	BaseAmount   int64
	Availability domain.WeeklyAvailability
}

func (s *Service) UpsertProvider(ctx context.Context, in ProviderInput) (p domain.Provider, err error) {
	ctx, done := s.begin(ctx, "UpsertProvider", attribute.String("provider_id", in.ProviderID))
	defer func() { done(err) }()

	id := strings.TrimSpace(in.ProviderID)
	if id == "" {
		return domain.Provider{}, validationError("provider_id is required")
	}
	if in.BaseAmount < 0 {
		return domain.Provider{}, validationError("base_amount must not be negative")
	}
	if err := in.Availability.Validate(); err != nil {
		return domain.Provider{}, validationError(err.Error())
	}

	err = s.repo.InProviderTransaction(ctx, id, func(ctx context.Context, tx store.ProviderTx) error {
		out, err := tx.UpsertProvider(ctx, domain.Provider{
			ID:           id,
			BaseAmount:   in.BaseAmount,
			Availability: in.Availability,
		})
		p = out
		return err
	})
	if err != nil {
		return domain.Provider{}, err
	}
	return p, nil
}

// SetAvailability replaces the provider's whole weekly map. Existing bookings
// are left alone.
func (s *Service) SetAvailability(ctx context.Context, providerID string, weekly domain.WeeklyAvailability) (p domain.Provider, err error) {
	ctx, done := s.begin(ctx, "SetAvailability", attribute.String("provider_id", providerID))
	defer func() { done(err) }()

	if providerID == "" {
		return domain.Provider{}, validationError("provider_id is required")
	}
	if err := weekly.Validate(); err != nil {
		return domain.Provider{}, validationError(err.Error())
	}

	err = s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ProviderTx) error {
		current, err := tx.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		current.Availability = weekly
		out, err := tx.UpsertProvider(ctx, current)
		p = out
		return err
	})
	if err != nil {
		return domain.Provider{}, err
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	if providerID == "" {
		return domain.Provider{}, validationError("provider_id is required")
	}
	return s.repo.GetProvider(ctx, providerID)
}

func (s *Service) lockSlot(ctx context.Context, providerID string, date time.Time, clock string) (func(), error) {
	release, err := s.locker.Acquire(ctx, slotKey(providerID, date, clock))
	if err != nil {
		if errors.Is(err, store.ErrSlotLocked) {
			return nil, fmt.Errorf("%w: slot is being booked", domain.ErrSlotUnavailable)
		}
		return nil, err
	}
	return func() {
		_ = release(context.WithoutCancel(ctx))
	}, nil
}

func slotKey(providerID string, date time.Time, clock string) string {
	return "slot:" + providerID + ":" + date.Format("2006-01-02") + ":" + clock
}

// checkSlot runs the availability and conflict checks for one slot inside tx.
func (s *Service) checkSlot(ctx context.Context, tx store.ProviderTx, p domain.Provider, date time.Time, clock string, exclude uuid.UUID) error {
	windows := p.Availability.WindowsFor(domain.WeekdayOf(date))
	if !availability.Accepts(windows, clock) {
		return fmt.Errorf("%w: %s %s is outside provider availability", domain.ErrSlotUnavailable, domain.WeekdayOf(date), clock)
	}
	taken, err := tx.SlotTaken(ctx, p.ID, date, clock, exclude)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: slot already booked", domain.ErrSlotUnavailable)
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, tx store.ProviderTx, eventType string, appt domain.Appointment) error {
	ev, err := domain.NewAppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	ev.Traceparent, ev.Tracestate = telemetry.TraceContextStrings(ctx)
	return tx.AppendEvent(ctx, ev)
}

// begin opens a span for op; the returned func records the outcome and ends it.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "appointments."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.rec.Operation(op, outcome, time.Since(start))
	}
}

// Outcome classifies err into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidAppointmentData):
		return "invalid"
	case errors.Is(err, domain.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, domain.ErrTooLate):
		return "too_late"
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
