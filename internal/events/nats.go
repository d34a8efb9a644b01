package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"stowage/pkg/domain"
)

// DefaultSubject prefixes every published event subject.
const DefaultSubject = "stowage.events"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig configures a NATS connection.
type NATSConfig struct {
	URL     string
	Name    string
	Subject string
	Timeout time.Duration
}

// NATSSink publishes each event as JSON on "<subject>.<type>".
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	closed  atomic.Bool
}

// DialNATS connects to a NATS server and returns a sink owning the connection.
func DialNATS(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "stowage"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	sink := NewNATSSink(conn, cfg.Subject)
	sink.conn = conn
	return sink, nil
}

// NewNATSSink wraps an existing publisher. An empty subject uses
// DefaultSubject.
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	subject = strings.Trim(subject, ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}
}

// Subject returns the subject an event of type t is published on.
func (s *NATSSink) Subject(t domain.EventType) string {
	return s.subject + "." + string(t)
}

// Publish sends events in order and stops at the first failure.
func (s *NATSSink) Publish(ctx context.Context, events ...domain.Event) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		if err := s.pub.Publish(s.Subject(e.Type), data); err != nil {
			return fmt.Errorf("publish event %s: %w", e.ID, err)
		}
	}
	return nil
}

// Close drains the owned connection, if any. Further publishes fail.
func (s *NATSSink) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}
