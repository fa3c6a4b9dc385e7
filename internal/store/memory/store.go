// Package memory is a process-local implementation of the store contracts.
// Every transaction runs under one mutex, so check-then-write sequences are
// atomic within the process.
package memory

import (
	"context"
	"encoding/json"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"consultd/internal/domain"
	"consultd/internal/store"
)

type Store struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]domain.Appointment
	providers    map[string]domain.Provider
	outbox       []domain.OutboxEvent
	nextEventID  int64
}

func New() *Store {
	return &Store{
		appointments: make(map[uuid.UUID]domain.Appointment),
		providers:    make(map[string]domain.Provider),
	}
}

var (
	_ store.AppointmentRepository = (*Store)(nil)
	_ store.OutboxRepository      = (*Store)(nil)
)

// InProviderTransaction must not call back into Store's own read methods
// from fn; use tx instead.
func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:            s,
		appointments: make(map[uuid.UUID]domain.Appointment),
		providers:    make(map[string]domain.Provider),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return cloneAppointment(a), nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Appointment, 0)
	for _, a := range s.appointments {
		if matches(a, filter) {
			out = append(out, cloneAppointment(a))
		}
	}
	sortAppointments(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return cloneProvider(p), nil
}

func (s *Store) SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.appointments {
		if occupies(a, providerID, date, clock) && a.ID != exclude {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ActiveSlotTimes(ctx context.Context, providerID string, date time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := domain.CalendarDate(date)
	times := make([]string, 0)
	for _, a := range s.appointments {
		if a.ProviderID == providerID && a.Date.Equal(day) && a.Status.Active() {
			times = append(times, a.Time)
		}
	}
	sort.Strings(times)
	return times, nil
}

// PublishPending releases the lock while fn runs so slow brokers do not
// block bookings.
func (s *Store) PublishPending(ctx context.Context, limit int, fn func(ctx context.Context, events []domain.OutboxEvent) error) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	batch := make([]domain.OutboxEvent, 0, limit)
	for _, ev := range s.outbox {
		if ev.PublishedAt != nil {
			continue
		}
		batch = append(batch, ev)
		if len(batch) == limit {
			break
		}
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	published := make(map[int64]struct{}, len(batch))
	for _, ev := range batch {
		published[ev.ID] = struct{}{}
	}
	now := time.Now().UTC()
	for i := range s.outbox {
		if _, ok := published[s.outbox[i].ID]; ok && s.outbox[i].PublishedAt == nil {
			t := now
			s.outbox[i].PublishedAt = &t
		}
	}
	return len(batch), nil
}

// Events returns a copy of every outbox event, published or not.
func (s *Store) Events() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}

type memTx struct {
	s            *Store
	appointments map[uuid.UUID]domain.Appointment
	providers    map[string]domain.Provider
	events       []domain.OutboxEvent
}

func (tx *memTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	if p, ok := tx.providers[providerID]; ok {
		return cloneProvider(p), nil
	}
	if p, ok := tx.s.providers[providerID]; ok {
		return cloneProvider(p), nil
	}
	return domain.Provider{}, store.ErrNotFound
}

func (tx *memTx) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	now := time.Now().UTC()
	m := cloneProvider(p)
	if m.Availability == nil {
		m.Availability = domain.WeeklyAvailability{}
	}
	m.CreatedAt = now
	if existing, err := tx.GetProvider(ctx, p.ID); err == nil {
		m.CreatedAt = existing.CreatedAt
	}
	m.UpdatedAt = now
	tx.providers[m.ID] = m
	return cloneProvider(m), nil
}

func (tx *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := tx.lookup(id)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return cloneAppointment(a), nil
}

func (tx *memTx) SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	taken := false
	tx.each(func(a domain.Appointment) {
		if a.ID != exclude && occupies(a, providerID, date, clock) {
			taken = true
		}
	})
	return taken, nil
}

func (tx *memTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := cloneAppointment(appt)
	m.Date = domain.CalendarDate(appt.Date)
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		m.ID = id
	}
	if _, ok := tx.lookup(m.ID); ok {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	if m.Status.Active() && tx.conflicts(m) {
		return domain.Appointment{}, store.ErrConflict
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	tx.appointments[m.ID] = m
	return cloneAppointment(m), nil
}

func (tx *memTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	existing, ok := tx.lookup(appt.ID)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}

	m := cloneAppointment(appt)
	m.Date = domain.CalendarDate(appt.Date)
	if m.Status.Active() && tx.conflicts(m) {
		return domain.Appointment{}, store.ErrConflict
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	tx.appointments[m.ID] = m
	return cloneAppointment(m), nil
}

func (tx *memTx) AppendEvent(ctx context.Context, ev domain.OutboxEvent) error {
	m := ev
	if m.EventID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.EventID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	tx.events = append(tx.events, m)
	return nil
}

func (tx *memTx) lookup(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := tx.appointments[id]; ok {
		return a, true
	}
	a, ok := tx.s.appointments[id]
	return a, ok
}

// each visits the committed state overlaid with this transaction's writes.
func (tx *memTx) each(fn func(a domain.Appointment)) {
	for id, a := range tx.s.appointments {
		if _, shadowed := tx.appointments[id]; shadowed {
			continue
		}
		fn(a)
	}
	for _, a := range tx.appointments {
		fn(a)
	}
}

func (tx *memTx) conflicts(m domain.Appointment) bool {
	found := false
	tx.each(func(a domain.Appointment) {
		if a.ID != m.ID && occupies(a, m.ProviderID, m.Date, m.Time) {
			found = true
		}
	})
	return found
}

func (tx *memTx) commit() {
	for id, a := range tx.appointments {
		tx.s.appointments[id] = a
	}
	for id, p := range tx.providers {
		tx.s.providers[id] = p
	}
	for _, ev := range tx.events {
		tx.s.nextEventID++
		ev.ID = tx.s.nextEventID
		tx.s.outbox = append(tx.s.outbox, ev)
	}
}

func occupies(a domain.Appointment, providerID string, date time.Time, clock string) bool {
	return a.ProviderID == providerID &&
		a.Date.Equal(domain.CalendarDate(date)) &&
		a.Time == clock &&
		a.Status.Active()
}

func matches(a domain.Appointment, f store.ListFilter) bool {
	if f.ProviderID != "" && a.ProviderID != f.ProviderID {
		return false
	}
	if f.RequesterID != "" && a.RequesterID != f.RequesterID {
		return false
	}
	if f.Date != nil && !a.Date.Equal(domain.CalendarDate(*f.Date)) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if a.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func sortAppointments(rows []domain.Appointment) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		if rows[i].Time != rows[j].Time {
			return rows[i].Time < rows[j].Time
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

func cloneAppointment(a domain.Appointment) domain.Appointment {
	out := a
	if a.Cancellation != nil {
		c := *a.Cancellation
		out.Cancellation = &c
	}
	out.Notes = cloneNotes(a.Notes)
	out.ConfirmedAt = cloneTime(a.ConfirmedAt)
	out.StartedAt = cloneTime(a.StartedAt)
	out.CompletedAt = cloneTime(a.CompletedAt)
	out.NoShowAt = cloneTime(a.NoShowAt)
	out.RescheduledAt = cloneTime(a.RescheduledAt)
	return out
}

// cloneNotes deep-copies through JSON, the same shape the jsonb column
// round-trips to.
func cloneNotes(notes map[string]any) map[string]any {
	if notes == nil {
		return nil
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return maps.Clone(notes)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return maps.Clone(notes)
	}
	return out
}

func cloneProvider(p domain.Provider) domain.Provider {
	out := p
	if p.Availability != nil {
		out.Availability = make(domain.WeeklyAvailability, len(p.Availability))
		for day, windows := range p.Availability {
			out.Availability[day] = append([]domain.Window(nil), windows...)
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
