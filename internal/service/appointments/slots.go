package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"consultd/internal/availability"
	"consultd/internal/domain"
)

// IsSlotFree reports whether no active appointment holds the exact slot. It
// does not consult availability windows.
func (s *Service) IsSlotFree(ctx context.Context, providerID string, date time.Time, clock string) (bool, error) {
	if providerID == "" {
		return false, validationError("provider_id is required")
	}
	if date.IsZero() {
		return false, validationError("date is required")
	}
	if _, err := domain.ParseClock(clock); err != nil {
		return false, validationError("time must be HH:MM")
	}

	taken, err := s.repo.SlotTaken(ctx, providerID, domain.CalendarDate(date), clock, uuid.Nil)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Service) AvailableSlots(ctx context.Context, providerID string, date time.Time) (slots []domain.Window, err error) {
	ctx, done := s.begin(ctx, "AvailableSlots", attribute.String("provider_id", providerID))
	defer func() { done(err) }()

	if providerID == "" {
		return nil, validationError("provider_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	day := domain.CalendarDate(date)

	p, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	windows := p.Availability.WindowsFor(domain.WeekdayOf(day))
	if len(windows) == 0 {
		return windows, nil
	}

	booked, err := s.repo.ActiveSlotTimes(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	return availability.FreeWindows(windows, booked), nil
}
