package core

import (
	"context"
	"time"
)

// Clock provides wall-clock time for timestamps on records and events.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logging contract used by the service.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// StateObserver is implemented by recorders that also track registry gauges.
type StateObserver interface {
	ObserveState(ctx context.Context, stats StateStats)
}

// InfeasibleObserver is implemented by recorders counting failed placements.
type InfeasibleObserver interface {
	ObserveInfeasible(ctx context.Context, itemID string)
}

// StateStats summarises the committed registry after a mutation.
type StateStats struct {
	Day           int
	ItemsByStatus map[ItemStatus]int
	Flagged       int
	Containers    int
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// EventSink consumes activity events after their transaction commits.
type EventSink interface {
	Publish(ctx context.Context, events ...Event) error
}

// EngineConfig tunes placement and waste policy.
type EngineConfig struct {
	// WasteZones are the zone tags eligible for waste relocation, matched
	// case-insensitively.
	WasteZones []string
	// HighPriorityThreshold is the priority from which placement favours the
	// shallowest retrieval depth over the smallest open-face footprint.
	HighPriorityThreshold int
	// PlaceBack re-places retrieval blockers automatically on confirmation.
	PlaceBack bool
}

// DefaultEngineConfig returns the built-in policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WasteZones:            []string{"waste"},
		HighPriorityThreshold: 70,
		PlaceBack:             true,
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithEventSink sets the activity event consumer.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithEngineConfig overrides placement and waste policy.
func WithEngineConfig(cfg EngineConfig) ServiceOption {
	return func(s *Service) {
		if cfg.HighPriorityThreshold <= 0 {
			cfg.HighPriorityThreshold = DefaultEngineConfig().HighPriorityThreshold
		}
		s.cfg = cfg
	}
}

type userKey struct{}

// WithUserID attaches the acting user to ctx; events record it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext returns the acting user, or "system".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}
