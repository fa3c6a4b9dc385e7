package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"consultd/internal/domain"
	"consultd/internal/store"
)

const (
	activeSlotConstraint      = "appointments_active_slot"
	appointmentPKeyConstraint = "appointments_pkey"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type providerTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, providerTx{tx: tx})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id, false)
}

func (r *AppointmentRepo) ListAppointments(ctx context.Context, filter store.ListFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Date != nil {
		q = q.Where("date = ?", dateArg(*filter.Date))
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statusValues(filter.Statuses)))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	err := q.OrderExpr("date ASC, slot_time ASC, id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, r.db, providerID)
}

func (r *AppointmentRepo) SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	return slotTaken(ctx, r.db, providerID, date, clock, exclude)
}

func (r *AppointmentRepo) ActiveSlotTimes(ctx context.Context, providerID string, date time.Time) ([]string, error) {
	var times []string
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Column("slot_time").
		Where("provider_id = ?", providerID).
		Where("date = ?", dateArg(date)).
		Where("status IN (?)", bun.In(statusValues(domain.ActiveStatuses))).
		OrderExpr("slot_time ASC").
		Scan(ctx, &times)
	if err != nil {
		return nil, err
	}
	return times, nil
}

func (r providerTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, r.tx, providerID)
}

func (r providerTx) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	m := p
	m.UpdatedAt = time.Now().UTC()
	if m.Availability == nil {
		m.Availability = domain.WeeklyAvailability{}
	}

	err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("base_amount = EXCLUDED.base_amount").
		Set("availability = EXCLUDED.availability").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	return m, nil
}

func (r providerTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.tx, id, true)
}

func (r providerTx) SlotTaken(ctx context.Context, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	return slotTaken(ctx, r.tx, providerID, date, clock, exclude)
}

func (r providerTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Date = domain.CalendarDate(appt.Date)

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r providerTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Date = domain.CalendarDate(appt.Date)

	res, err := r.tx.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (r providerTx) AppendEvent(ctx context.Context, ev domain.OutboxEvent) error {
	m := ev
	_, err := r.tx.NewInsert().Model(&m).Exec(ctx)
	return err
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID, forUpdate bool) (domain.Appointment, error) {
	var a domain.Appointment
	q := db.NewSelect().Model(&a).Where("id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func getProvider(ctx context.Context, db bun.IDB, providerID string) (domain.Provider, error) {
	var p domain.Provider
	err := db.NewSelect().Model(&p).Where("id = ?", providerID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Provider{}, store.ErrNotFound
		}
		return domain.Provider{}, err
	}
	return p, nil
}

func slotTaken(ctx context.Context, db bun.IDB, providerID string, date time.Time, clock string, exclude uuid.UUID) (bool, error) {
	q := db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("provider_id = ?", providerID).
		Where("date = ?", dateArg(date)).
		Where("slot_time = ?", clock).
		Where("status IN (?)", bun.In(statusValues(domain.ActiveStatuses)))
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	return q.Exists(ctx)
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case activeSlotConstraint:
			return store.ErrConflict
		case appointmentPKeyConstraint:
			return store.ErrIdempotencyConflict
		}
	}
	return err
}

func dateArg(t time.Time) string {
	return t.Format("2006-01-02")
}

func statusValues(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
