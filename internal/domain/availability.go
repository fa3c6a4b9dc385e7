package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (w Weekday) Valid() bool {
	for _, d := range Weekdays {
		if d == w {
			return true
		}
	}
	return false
}

func WeekdayOf(t time.Time) Weekday {
	return Weekday(strings.ToLower(t.Weekday().String()))
}

// Window is a half-open range of bookable start times on one weekday,
// expressed as "HH:MM" clock strings.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (w Window) Validate() error {
	start, err := ParseClock(w.Start)
	if err != nil {
		return err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("%w: window %s-%s ends before it starts", ErrInvalidAppointmentData, w.Start, w.End)
	}
	return nil
}

// Covers reports whether clock falls in [Start, End).
func (w Window) Covers(clock string) bool {
	m, err := ParseClock(clock)
	if err != nil {
		return false
	}
	start, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false
	}
	return start <= m && m < end
}

type WeeklyAvailability map[Weekday][]Window

// WindowsFor returns the configured windows for day, or an empty slice.
func (wa WeeklyAvailability) WindowsFor(day Weekday) []Window {
	windows := wa[day]
	if len(windows) == 0 {
		return []Window{}
	}
	out := make([]Window, len(windows))
	copy(out, windows)
	return out
}

func (wa WeeklyAvailability) Validate() error {
	for day, windows := range wa {
		if !day.Valid() {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidAppointmentData, day)
		}
		for _, w := range windows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("%s: %w", day, err)
			}
		}
	}
	return nil
}

// ParseClock parses a strict "HH:MM" string into minutes after midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidAppointmentData, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidAppointmentData, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID           string             `bun:"id,pk"`
	BaseAmount   int64              `bun:"base_amount,notnull"`
	Availability WeeklyAvailability `bun:"availability,type:jsonb,notnull"`
	CreatedAt    time.Time          `bun:"created_at,notnull"`
	UpdatedAt    time.Time          `bun:"updated_at,notnull"`
}

func (p *Provider) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		if p.Availability == nil {
			p.Availability = WeeklyAvailability{}
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}
