package appointments

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"consultd/internal/domain"
)

// SlotLocker reserves a slot key for the duration of a check-and-write.
type SlotLocker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// Recorder receives business outcomes for metrics.
type Recorder interface {
	Operation(op string, outcome string, elapsed time.Duration)
	Refund(amount int64)
}

type DurationBounds struct {
	Min     int
	Max     int
	Default int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the reference zone that appointment dates and times are
// expressed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithPolicy(p domain.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func (b DurationBounds) validate() error {
	if b.Min <= 0 || b.Max < b.Min || b.Default < b.Min || b.Default > b.Max {
		return fmt.Errorf("invalid duration bounds: min=%d max=%d default=%d", b.Min, b.Max, b.Default)
	}
	return nil
}

// WithDurationBounds panics unless 0 < Min <= Default <= Max.
func WithDurationBounds(b DurationBounds) Option {
	if err := b.validate(); err != nil {
		panic(err)
	}
	return func(s *Service) {
		s.durations = b
	}
}

func WithSlotLocker(l SlotLocker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type noopRecorder struct{}

func (noopRecorder) Operation(string, string, time.Duration) {}
func (noopRecorder) Refund(int64)                            {}

func defaultTracer() trace.Tracer {
	return otel.Tracer("consultd/internal/service/appointments")
}
