package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"time"
)

var expvarNames sync.Mutex

// ExpvarRecorder publishes service metrics as one expvar map:
//
//	operations   "<op>.success" / "<op>.error" call counts
//	durations_ms cumulative milliseconds per operation
//	infeasible   placements no container could take
//	day, items, flagged, containers  latest committed registry summary
type ExpvarRecorder struct {
	name       string
	vars       *expvar.Map
	operations *expvar.Map
	durations  *expvar.Map
	items      *expvar.Map
	infeasible *expvar.Int
	day        *expvar.Int
	flagged    *expvar.Int
	containers *expvar.Int
}

// ExpvarSnapshot is the decoded form of the published map.
type ExpvarSnapshot struct {
	Operations  map[string]int64   `json:"operations"`
	DurationsMS map[string]float64 `json:"durations_ms"`
	Infeasible  int64              `json:"infeasible"`
	Day         int64              `json:"day"`
	Items       map[string]int64   `json:"items"`
	Flagged     int64              `json:"flagged"`
	Containers  int64              `json:"containers"`
}

// NewExpvarRecorder publishes a recorder under name. A name already taken in
// the process gets a numeric suffix.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = "stowage"
	}
	r := &ExpvarRecorder{
		vars:       new(expvar.Map).Init(),
		operations: new(expvar.Map).Init(),
		durations:  new(expvar.Map).Init(),
		items:      new(expvar.Map).Init(),
		infeasible: new(expvar.Int),
		day:        new(expvar.Int),
		flagged:    new(expvar.Int),
		containers: new(expvar.Int),
	}
	r.vars.Set("operations", r.operations)
	r.vars.Set("durations_ms", r.durations)
	r.vars.Set("items", r.items)
	r.vars.Set("infeasible", r.infeasible)
	r.vars.Set("day", r.day)
	r.vars.Set("flagged", r.flagged)
	r.vars.Set("containers", r.containers)

	expvarNames.Lock()
	defer expvarNames.Unlock()
	r.name = name
	for i := 2; expvar.Get(r.name) != nil; i++ {
		r.name = fmt.Sprintf("%s_%d", name, i)
	}
	expvar.Publish(r.name, r.vars)
	return r
}

// Name returns the expvar key the recorder is published under.
func (r *ExpvarRecorder) Name() string { return r.name }

// Observe counts an operation outcome and adds its duration.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.Add(operation+"."+status, 1)
	r.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
}

// ObserveState replaces the registry summary.
func (r *ExpvarRecorder) ObserveState(_ context.Context, stats StateStats) {
	r.day.Set(int64(stats.Day))
	r.flagged.Set(int64(stats.Flagged))
	r.containers.Set(int64(stats.Containers))
	r.items.Init()
	for status, n := range stats.ItemsByStatus {
		v := new(expvar.Int)
		v.Set(int64(n))
		r.items.Set(string(status), v)
	}
}

// ObserveInfeasible counts an item no container could take.
func (r *ExpvarRecorder) ObserveInfeasible(context.Context, string) {
	r.infeasible.Add(1)
}

// Snapshot decodes the current map.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	var snap ExpvarSnapshot
	_ = json.Unmarshal([]byte(r.vars.String()), &snap)
	return snap
}

// WriteJSON writes the map as published on /debug/vars.
func (r *ExpvarRecorder) WriteJSON(w io.Writer) error {
	_, err := io.WriteString(w, r.vars.String()+"\n")
	return err
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the writer.
// The tracer retains all encoded spans for later inspection via Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{
		enc: enc,
	}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		userID:    UserIDFromContext(ctx),
		started:   time.Now().UTC(),
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	userID    string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		UserID:     s.userID,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
