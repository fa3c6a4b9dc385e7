package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"consultd/internal/domain"
	"consultd/internal/store"
	"consultd/internal/store/memory"
)

type fakeRepo struct {
	inProviderTxFn     func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error
	getAppointmentFn   func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listAppointmentsFn func(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error)
	getProviderFn      func(ctx context.Context, providerID string) (domain.Provider, error)
	slotTakenFn        func(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error)
	activeSlotTimesFn  func(ctx context.Context, providerID string, date time.Time) ([]string, error)
}

func (f *fakeRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	if f.inProviderTxFn == nil {
		panic("InProviderTransaction not configured")
	}
	return f.inProviderTxFn(ctx, providerID, fn)
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getAppointmentFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getAppointmentFn(ctx, id)
}

func (f *fakeRepo) ListAppointments(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	if f.listAppointmentsFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listAppointmentsFn(ctx, filter)
}

func (f *fakeRepo) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	if f.getProviderFn == nil {
		panic("GetProvider not configured")
	}
	return f.getProviderFn(ctx, providerID)
}

func (f *fakeRepo) SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	if f.slotTakenFn == nil {
		panic("SlotTaken not configured")
	}
	return f.slotTakenFn(ctx, providerID, date, clock, exclude)
}

func (f *fakeRepo) ActiveSlotTimes(ctx context.Context, providerID string, date time.Time) ([]string, error) {
	if f.activeSlotTimesFn == nil {
		panic("ActiveSlotTimes not configured")
	}
	return f.activeSlotTimesFn(ctx, providerID, date)
}

// testClock is safe for concurrent reads.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var (
	// Sunday 08:00; the next day carries the provider's Monday window.
	testNow    = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	testMonday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func slotStart(clock string) time.Time {
	minutes, _ := domain.ParseClock(clock)
	return testMonday.Add(time.Duration(minutes) * time.Minute)
}

func newMemoryService(t *testing.T, opts ...Option) (*Service, *memory.Store, *testClock) {
	t.Helper()

	st := memory.New()
	clock := &testClock{t: testNow}
	svc := NewService(st, append([]Option{WithClock(clock.Now)}, opts...)...)

	_, err := svc.UpsertProvider(context.Background(), ProviderInput{
		ProviderID: "p1",
		BaseAmount: 2000,
		Availability: domain.WeeklyAvailability{
			domain.Monday: {{Start: "09:00", End: "17:00"}},
		},
	})
	if err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}
	return svc, st, clock
}

func mondayBooking(clock string) BookInput {
	return BookInput{
		ProviderID:  "p1",
		RequesterID: "r1",
		Date:        testMonday,
		Time:        clock,
		Channel:     domain.ChannelPhone,
	}
}

func TestServiceBook_ValidationErrorType(t *testing.T) {
	svc := NewService(&fakeRepo{}, WithClock(func() time.Time { return testNow }))

	_, err := svc.Book(context.Background(), BookInput{
		ProviderID: "p1",
		Date:       testMonday,
		Time:       "10:00",
		Channel:    domain.ChannelPhone,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "requester_id is required" {
		t.Fatalf("error = %q, want %q", vErr.Error(), "requester_id is required")
	}
	if !errors.Is(err, domain.ErrInvalidAppointmentData) {
		t.Fatalf("validation errors must match ErrInvalidAppointmentData")
	}
}

func TestServiceBook_InvalidAppointmentData(t *testing.T) {
	svc := NewService(&fakeRepo{}, WithClock(func() time.Time { return testNow }))

	cases := map[string]BookInput{
		"bad time":               {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10am", Channel: domain.ChannelPhone},
		"unknown channel":        {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10:00", Channel: "fax"},
		"too short":              {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10:00", Channel: domain.ChannelPhone, DurationMinutes: 10},
		"too long":               {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10:00", Channel: domain.ChannelPhone, DurationMinutes: 121},
		"video without link":     {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10:00", Channel: domain.ChannelVideo},
		"in-person without room": {ProviderID: "p1", RequesterID: "r1", Date: testMonday, Time: "10:00", Channel: domain.ChannelInPerson, Location: "  "},
		"in the past":            {ProviderID: "p1", RequesterID: "r1", Date: testNow.AddDate(0, 0, -1), Time: "10:00", Channel: domain.ChannelPhone},
		"missing date":           {ProviderID: "p1", RequesterID: "r1", Time: "10:00", Channel: domain.ChannelPhone},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), in)
			if !errors.Is(err, domain.ErrInvalidAppointmentData) {
				t.Fatalf("err = %v, want ErrInvalidAppointmentData", err)
			}
		})
	}
}

func TestServiceBook_IdempotencyKeyDeterministicUUID(t *testing.T) {
	var got []uuid.UUID
	repo := &fakeRepo{
		inProviderTxFn: func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
			return errors.New("stop")
		},
	}
	svc := NewService(repo, WithClock(func() time.Time { return testNow }), WithSlotLocker(lockerFunc(func(ctx context.Context, key string) (func(context.Context) error, error) {
		return func(context.Context) error { return nil }, nil
	})))

	for i := 0; i < 2; i++ {
		in := mondayBooking("10:00")
		in.IdempotencyKey = "  k1 "
		appt, _ := svc.newAppointment(in)
		got = append(got, appt.ID)
	}

	want := uuid.NewSHA1(uuid.NameSpaceOID, []byte("consultd:book_appointment:r1:k1"))
	if got[0] != want || got[1] != want {
		t.Fatalf("ids = %v, want %s twice", got, want)
	}

	in := mondayBooking("10:00")
	appt, err := svc.newAppointment(in)
	if err != nil {
		t.Fatalf("newAppointment error: %v", err)
	}
	if appt.ID != uuid.Nil {
		t.Fatalf("id without key = %s, want nil", appt.ID)
	}

	if _, err := svc.Book(context.Background(), in); err == nil || err.Error() != "stop" {
		t.Fatalf("infrastructure error must pass through unchanged, got %v", err)
	}
}

type lockerFunc func(ctx context.Context, key string) (func(context.Context) error, error)

func (f lockerFunc) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	return f(ctx, key)
}

func TestServiceBook_ScenarioA(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	appt, err := svc.Book(context.Background(), mondayBooking("10:00"))
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if appt.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", appt.Status)
	}
	if appt.DurationMinutes != 45 {
		t.Fatalf("duration = %d, want default 45", appt.DurationMinutes)
	}
	if appt.PaymentAmount != 2000 || appt.PaymentStatus != domain.PaymentPending {
		t.Fatalf("payment = %d/%s, want 2000/pending", appt.PaymentAmount, appt.PaymentStatus)
	}
	if appt.ID == uuid.Nil {
		t.Fatalf("expected id to be assigned")
	}

	second := mondayBooking("10:00")
	second.RequesterID = "r2"
	_, err = svc.Book(context.Background(), second)
	if !errors.Is(err, domain.ErrSlotUnavailable) {
		t.Fatalf("second booking err = %v, want ErrSlotUnavailable", err)
	}
}

func TestServiceBook_OutsideAvailabilityIsSlotUnavailable(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	for _, clock := range []string{"08:59", "17:00", "18:30"} {
		if _, err := svc.Book(context.Background(), mondayBooking(clock)); !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("Book(%s) err = %v, want ErrSlotUnavailable", clock, err)
		}
	}

	tuesday := mondayBooking("10:00")
	tuesday.Date = testMonday.AddDate(0, 0, 1)
	if _, err := svc.Book(context.Background(), tuesday); !errors.Is(err, domain.ErrSlotUnavailable) {
		t.Fatalf("Book on unconfigured weekday err = %v, want ErrSlotUnavailable", err)
	}
}

func TestServiceBook_UnknownProviderIsNotFound(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	in := mondayBooking("10:00")
	in.ProviderID = "nobody"
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServiceBook_IdempotentReplay(t *testing.T) {
	svc, st, _ := newMemoryService(t)

	in := mondayBooking("10:00")
	in.IdempotencyKey = "req-1"

	first, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("first Book error: %v", err)
	}
	replay, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("replayed Book error: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", replay.ID, first.ID)
	}
	if n := len(st.Events()); n != 1 {
		t.Fatalf("events = %d, want 1 (replay must not emit)", n)
	}

	in.Time = "11:00"
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("reused key err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestServiceBook_ReplayAfterRescheduleReturnsOriginal(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	in := mondayBooking("10:00")
	in.IdempotencyKey = "req-1"
	first, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if _, err := svc.Reschedule(context.Background(), first.ID, testMonday, "11:30"); err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}

	replay, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("replay after reschedule error: %v", err)
	}
	if replay.ID != first.ID || replay.Time != "11:30" {
		t.Fatalf("replay = %s at %s, want %s at 11:30", replay.ID, replay.Time, first.ID)
	}

	in.DurationMinutes = 60
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("changed duration err = %v, want ErrIdempotencyConflict", err)
	}
}

func TestServiceBook_ReplayAfterStartReturnsOriginal(t *testing.T) {
	svc, _, clock := newMemoryService(t)

	in := mondayBooking("10:00")
	in.IdempotencyKey = "req-1"
	first, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}

	clock.Set(slotStart("10:00").Add(time.Minute))
	replay, err := svc.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("replay after start error: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", replay.ID, first.ID)
	}

	fresh := mondayBooking("11:00")
	fresh.IdempotencyKey = "req-2"
	if _, err := svc.Book(context.Background(), fresh); !errors.Is(err, domain.ErrInvalidAppointmentData) {
		t.Fatalf("new keyed booking in the past err = %v, want ErrInvalidAppointmentData", err)
	}
}

func TestServiceBook_ConfiguredDurationBounds(t *testing.T) {
	svc, _, _ := newMemoryService(t, WithDurationBounds(DurationBounds{Min: 15, Max: 30, Default: 30}))

	in := mondayBooking("10:00")
	in.DurationMinutes = 60
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, domain.ErrInvalidAppointmentData) {
		t.Fatalf("60 minute booking err = %v, want ErrInvalidAppointmentData", err)
	}

	appt, err := svc.Book(context.Background(), mondayBooking("10:00"))
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if appt.DurationMinutes != 30 {
		t.Fatalf("duration = %d, want default 30", appt.DurationMinutes)
	}
}

func TestWithDurationBounds_PanicsOnInconsistentBounds(t *testing.T) {
	for _, b := range []DurationBounds{
		{Min: 15, Max: 30, Default: 45},
		{Min: 60, Max: 30, Default: 45},
		{Min: 0, Max: 120, Default: 45},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("WithDurationBounds(%+v) did not panic", b)
				}
			}()
			WithDurationBounds(b)
		}()
	}
}

func TestServiceBook_LockedSlotIsUnavailable(t *testing.T) {
	locker := lockerFunc(func(ctx context.Context, key string) (func(context.Context) error, error) {
		if key != "slot:p1:2026-03-02:10:00" {
			t.Errorf("lock key = %q", key)
		}
		return nil, store.ErrSlotLocked
	})
	svc, _, _ := newMemoryService(t, WithSlotLocker(locker))

	if _, err := svc.Book(context.Background(), mondayBooking("10:00")); !errors.Is(err, domain.ErrSlotUnavailable) {
		t.Fatalf("err = %v, want ErrSlotUnavailable", err)
	}
}

func TestServiceBook_ReleasesLock(t *testing.T) {
	var released int
	locker := lockerFunc(func(ctx context.Context, key string) (func(context.Context) error, error) {
		return func(context.Context) error {
			released++
			return nil
		}, nil
	})
	svc, _, _ := newMemoryService(t, WithSlotLocker(locker))

	if _, err := svc.Book(context.Background(), mondayBooking("10:00")); err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if _, err := svc.Book(context.Background(), mondayBooking("10:00")); err == nil {
		t.Fatalf("expected second booking to fail")
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}
}

func TestServiceBook_ConcurrentRequestsForOneSlot(t *testing.T) {
	svc, st, _ := newMemoryService(t)

	const attempts = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := mondayBooking("10:00")
			in.RequesterID = uuid.NewString()
			_, err := svc.Book(context.Background(), in)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrSlotUnavailable):
				rejected++
			default:
				t.Errorf("attempt %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || rejected != attempts-1 {
		t.Fatalf("ok = %d rejected = %d, want 1 and %d", ok, rejected, attempts-1)
	}
	rows, err := st.ListAppointments(context.Background(), store.ListFilter{ProviderID: "p1"})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored = %d, want 1", len(rows))
	}
}

func TestServiceGet_RequiresID(t *testing.T) {
	svc := NewService(&fakeRepo{})
	_, err := svc.Get(context.Background(), uuid.Nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestServiceList_NormalizesFilter(t *testing.T) {
	var got store.ListFilter
	svc := NewService(&fakeRepo{
		listAppointmentsFn: func(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
			got = filter
			return nil, nil
		},
	})

	loc := time.FixedZone("UTC+3", 3*60*60)
	day := time.Date(2026, 3, 2, 1, 0, 0, 0, loc)
	_, err := svc.List(context.Background(), ListInput{RequesterID: "r1", Date: &day})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if got.Date == nil || !got.Date.Equal(testMonday) {
		t.Fatalf("date = %v, want %v", got.Date, testMonday)
	}
	if got.Limit != 500 {
		t.Fatalf("limit = %d, want 500", got.Limit)
	}

	if _, err := svc.List(context.Background(), ListInput{}); err == nil {
		t.Fatalf("expected validation error without provider or requester")
	}
	if _, err := svc.List(context.Background(), ListInput{ProviderID: "p1", Statuses: []domain.Status{"lost"}}); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
}

func TestServiceUpsertProvider_ValidatesAvailability(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	_, err := svc.UpsertProvider(context.Background(), ProviderInput{
		ProviderID:   "p2",
		Availability: domain.WeeklyAvailability{domain.Friday: {{Start: "12:00", End: "11:00"}}},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}

	if _, err := svc.UpsertProvider(context.Background(), ProviderInput{ProviderID: "p2", BaseAmount: -1}); !errors.As(err, &vErr) {
		t.Fatalf("negative amount err = %v, want *ValidationError", err)
	}
}

func TestServiceSetAvailability_ReplacesWeeklyMap(t *testing.T) {
	svc, _, _ := newMemoryService(t)

	p, err := svc.SetAvailability(context.Background(), "p1", domain.WeeklyAvailability{
		domain.Tuesday: {{Start: "10:00", End: "12:00"}},
	})
	if err != nil {
		t.Fatalf("SetAvailability error: %v", err)
	}
	if len(p.Availability.WindowsFor(domain.Monday)) != 0 {
		t.Fatalf("monday windows survived replacement")
	}
	if p.BaseAmount != 2000 {
		t.Fatalf("base amount = %d, want 2000", p.BaseAmount)
	}

	if _, err := svc.Book(context.Background(), mondayBooking("10:00")); !errors.Is(err, domain.ErrSlotUnavailable) {
		t.Fatalf("monday booking after replacement err = %v, want ErrSlotUnavailable", err)
	}

	if _, err := svc.SetAvailability(context.Background(), "ghost", domain.WeeklyAvailability{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown provider err = %v, want ErrNotFound", err)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":                   nil,
		"invalid":              validationError("x"),
		"slot_unavailable":     domain.ErrSlotUnavailable,
		"invalid_transition":   domain.ErrInvalidTransition,
		"not_cancellable":      domain.ErrNotCancellable,
		"too_late":             domain.ErrTooLate,
		"idempotency_conflict": store.ErrIdempotencyConflict,
		"not_found":            store.ErrNotFound,
		"error":                errors.New("db down"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}
