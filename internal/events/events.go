// Package events provides activity-log sinks for the stowage service: an
// in-memory log with filtered queries, a zap log sink, a NATS publisher and a
// fan-out combinator.
package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"stowage/pkg/domain"
)

// Sink consumes committed activity events.
type Sink interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// ErrClosed is returned when publishing to a closed sink.
var ErrClosed = errors.New("events: sink closed")

// Filter narrows a Query. Zero fields match everything; From and To bound the
// event timestamp inclusively.
type Filter struct {
	From   time.Time
	To     time.Time
	ItemID string
	UserID string
	Types  []domain.EventType
	// Limit caps the number of results, newest last. Zero means no cap.
	Limit int
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e domain.Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.ItemID != "" && e.ItemID != f.ItemID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	return true
}

// Memory keeps every published event in order. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	events []domain.Event
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish appends events to the log.
func (m *Memory) Publish(_ context.Context, events ...domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Len returns the number of recorded events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Query returns matching events in publication order. With a Limit only the
// most recent matches are kept.
func (m *Memory) Query(f Filter) []domain.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Event
	for _, e := range m.events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Multi fans events out to several sinks. Every sink sees every batch; errors
// are joined.
type Multi []Sink

// Publish forwards events to each sink in order.
func (m Multi) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
