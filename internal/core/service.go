package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"stowage/internal/infra/persistence/memory"
)

// Service is the owned engine context: it serialises mutations through the
// store, stages retrieval plans, and reports every committed change to the
// configured observers.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	sink    EventSink
	cfg     EngineConfig

	mu    sync.Mutex
	plans map[string]RetrievalPlan
}

func newService(opts []ServiceOption) *Service {
	svc := &Service{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		cfg:     DefaultEngineConfig(),
		plans:   make(map[string]RetrievalPlan),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := newService(opts)
	svc.store = store
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs the default rule set for the configured waste zones.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	svc := newService(opts)
	if engine == nil {
		engine = NewDefaultRulesEngine(svc.cfg.WasteZones...)
	}
	svc.store = memory.NewStore(engine)
	return svc
}

// NewServiceFromState builds an in-memory service from the four persisted
// collections.
func NewServiceFromState(state State, opts ...ServiceOption) (*Service, error) {
	svc := NewInMemoryService(nil, opts...)
	if err := svc.store.ImportState(state); err != nil {
		return nil, err
	}
	return svc, nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Config returns the engine policy in effect.
func (s *Service) Config() EngineConfig {
	return s.cfg
}

// ExportState returns the items, containers, placements and day counter.
func (s *Service) ExportState() State {
	return s.store.ExportState()
}

// View runs fn against a read-only snapshot.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// activity collects events produced inside a transaction; they are published
// only once the transaction commits.
type activity struct {
	userID string
	now    time.Time
	events []Event
}

func (a *activity) record(tx Transaction, e Event) {
	e.ID = newEventID()
	e.UserID = a.userID
	e.Timestamp = a.now
	e.Day = tx.Snapshot().Day()
	a.events = append(a.events, e)
}

func newEventID() string {
	return ulid.Make().String()
}

func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction, act *activity) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	act := &activity{userID: UserIDFromContext(ctx), now: s.clock.Now()}
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		act.events = act.events[:0]
		return fn(tx, act)
	})
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", op, "events", len(act.events))
	s.publish(ctx, act.events)
	s.observeState(ctx)
	return res, nil
}

func (s *Service) publish(ctx context.Context, events []Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	if err := s.sink.Publish(ctx, events...); err != nil {
		s.logger.Warn("event publish failed", "events", len(events), "error", err)
	}
}

func (s *Service) observeState(ctx context.Context) {
	observer, ok := s.metrics.(StateObserver)
	if !ok {
		return
	}
	stats := StateStats{ItemsByStatus: make(map[ItemStatus]int)}
	_ = s.store.View(ctx, func(view TransactionView) error {
		stats.Day = view.Day()
		stats.Containers = len(view.ListContainers())
		for _, item := range view.ListItems() {
			stats.ItemsByStatus[item.Status]++
			if item.Flagged {
				stats.Flagged++
			}
		}
		return nil
	})
	observer.ObserveState(ctx, stats)
}

func (s *Service) observeInfeasible(ctx context.Context, itemID string) {
	if observer, ok := s.metrics.(InfeasibleObserver); ok {
		observer.ObserveInfeasible(ctx, itemID)
	}
}

// RegisterContainers adds containers to the registry in one transaction.
func (s *Service) RegisterContainers(ctx context.Context, containers ...Container) ([]Container, Result, error) {
	created := make([]Container, 0, len(containers))
	res, err := s.run(ctx, "register_containers", func(tx Transaction, _ *activity) error {
		created = created[:0]
		for _, c := range containers {
			out, err := tx.CreateContainer(c)
			if err != nil {
				return err
			}
			created = append(created, out)
		}
		return nil
	})
	return created, res, err
}

// MarkBaseline records the current registry as the reset target.
func (s *Service) MarkBaseline(ctx context.Context) error {
	_, err := s.run(ctx, "mark_baseline", func(tx Transaction, _ *activity) error {
		tx.MarkBaseline()
		return nil
	})
	return err
}

// GetItem returns a committed item.
func (s *Service) GetItem(ctx context.Context, id string) (Item, bool) {
	var (
		item Item
		ok   bool
	)
	_ = s.store.View(ctx, func(view TransactionView) error {
		item, ok = view.FindItem(id)
		return nil
	})
	return item, ok
}

// GetPlacement returns the committed placement of an item.
func (s *Service) GetPlacement(ctx context.Context, itemID string) (Placement, bool) {
	var (
		p  Placement
		ok bool
	)
	_ = s.store.View(ctx, func(view TransactionView) error {
		p, ok = view.FindPlacement(itemID)
		return nil
	})
	return p, ok
}

// Day returns the committed simulation day.
func (s *Service) Day(ctx context.Context) int {
	var day int
	_ = s.store.View(ctx, func(view TransactionView) error {
		day = view.Day()
		return nil
	})
	return day
}

func describe(p Placement) string {
	return fmt.Sprintf("%s@%s", p.ContainerID, p.Position)
}
