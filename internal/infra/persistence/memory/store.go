// Package memory provides an in-memory implementation of the container
// registry used for tests, ephemeral environments and as the working set of
// the durable backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Item aliases domain.Item for in-memory persistence operations.
	Item = domain.Item
	// Container aliases domain.Container.
	Container = domain.Container
	// Placement aliases domain.Placement.
	Placement = domain.Placement
	// State aliases domain.State.
	State = domain.State
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	items      map[string]Item
	containers map[string]Container
	placements map[string]Placement
	day        int
	baseline   *State
}

func newMemoryState() memoryState {
	return memoryState{
		items:      make(map[string]Item),
		containers: make(map[string]Container),
		placements: make(map[string]Placement),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		items:      make(map[string]Item, len(s.items)),
		containers: make(map[string]Container, len(s.containers)),
		placements: make(map[string]Placement, len(s.placements)),
		day:        s.day,
		baseline:   s.baseline,
	}
	for k, v := range s.items {
		cloned.items[k] = domain.CloneItem(v)
	}
	for k, v := range s.containers {
		cloned.containers[k] = v
	}
	for k, v := range s.placements {
		cloned.placements[k] = v
	}
	return cloned
}

func (s memoryState) export() State {
	out := State{Day: s.day}
	for _, item := range s.items {
		out.Items = append(out.Items, domain.CloneItem(item))
	}
	for _, c := range s.containers {
		out.Containers = append(out.Containers, c)
	}
	for _, p := range s.placements {
		out.Placements = append(out.Placements, p)
	}
	out.Normalize()
	return out
}

// stateFromDomain builds a memory state and verifies the layout is physically
// consistent: valid dimensions, known references, in-bounds and disjoint.
func stateFromDomain(in State) (memoryState, error) {
	state := newMemoryState()
	state.day = in.Day
	for _, c := range in.Containers {
		if err := c.Dimensions.Validate(); err != nil {
			return memoryState{}, domain.NewError(domain.KindInvalidDimensions, "", c.ID, err.Error())
		}
		if _, dup := state.containers[c.ID]; dup {
			return memoryState{}, domain.NewError(domain.KindDuplicate, "", c.ID, "container listed twice")
		}
		state.containers[c.ID] = c
	}
	for _, item := range in.Items {
		if err := item.Dimensions.Validate(); err != nil {
			return memoryState{}, domain.NewError(domain.KindInvalidDimensions, item.ID, "", err.Error())
		}
		if _, dup := state.items[item.ID]; dup {
			return memoryState{}, domain.NewError(domain.KindDuplicate, item.ID, "", "item listed twice")
		}
		state.items[item.ID] = domain.CloneItem(item)
	}
	byContainer := make(map[string][]Placement)
	for _, p := range in.Placements {
		item, ok := state.items[p.ItemID]
		if !ok {
			return memoryState{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: p.ItemID}
		}
		c, ok := state.containers[p.ContainerID]
		if !ok {
			return memoryState{}, domain.ErrNotFound{Entity: domain.EntityContainer, ID: p.ContainerID}
		}
		if _, dup := state.placements[p.ItemID]; dup {
			return memoryState{}, domain.NewError(domain.KindDuplicate, p.ItemID, p.ContainerID, "item placed twice")
		}
		extents, err := geometry.Orient(item.Dimensions, p.Orientation)
		if err != nil {
			return memoryState{}, domain.NewError(domain.KindInvalidDimensions, p.ItemID, p.ContainerID, err.Error())
		}
		p.Extents = extents
		if !geometry.Within(c.Dimensions, p.Box()) {
			return memoryState{}, domain.NewError(domain.KindOutOfBounds, p.ItemID, p.ContainerID, "placement exceeds container")
		}
		if hits := domain.Collisions(byContainer[p.ContainerID], p.Box(), ""); len(hits) > 0 {
			return memoryState{}, domain.NewError(domain.KindOverlap, p.ItemID, p.ContainerID, "collides with "+hits[0])
		}
		byContainer[p.ContainerID] = append(byContainer[p.ContainerID], p)
		state.placements[p.ItemID] = p
	}
	for id := range byContainer {
		state.refreshDepths(id)
	}
	return state, nil
}

func (s *memoryState) containerPlacements(containerID string) []Placement {
	var out []Placement
	for _, p := range s.placements {
		if p.ContainerID == containerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (s *memoryState) refreshDepths(containerID string) {
	placements := s.containerPlacements(containerID)
	domain.RefreshDepths(placements)
	for _, p := range placements {
		s.placements[p.ItemID] = p
	}
}

// Store provides an in-memory transactional registry.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current registry for external persistence.
func (s *Store) ExportState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.export()
}

// ImportState replaces the registry with the provided state after validating
// it. The recorded baseline is kept.
func (s *Store) ImportState(in State) error {
	state, err := stateFromDomain(in)
	if err != nil {
		return fmt.Errorf("import state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state.baseline = s.state.baseline
	s.state = state
	return nil
}

// Baseline returns the recorded reset target.
func (s *Store) Baseline() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.baseline == nil {
		return State{}, false
	}
	return s.state.baseline.Clone(), true
}

// ImportBaseline replaces the recorded reset target.
func (s *Store) ImportBaseline(in State) error {
	if _, err := stateFromDomain(in); err != nil {
		return fmt.Errorf("import baseline: %w", err)
	}
	baseline := in.Clone()
	baseline.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.baseline = &baseline
	return nil
}

// RulesEngine exposes the configured engine so callers can register rules.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// GetItem returns a committed item by identifier.
func (s *Store) GetItem(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.state.items[id]
	if !ok {
		return Item{}, false
	}
	return domain.CloneItem(item), true
}

// GetPlacement returns the committed placement of an item.
func (s *Store) GetPlacement(itemID string) (Placement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.placements[itemID]
	return p, ok
}

// Day returns the committed simulation day.
func (s *Store) Day() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.day
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) Day() int { return v.state.day }

func (v transactionView) HasBaseline() bool { return v.state.baseline != nil }

// ListItems returns all items ordered by identifier.
func (v transactionView) ListItems() []Item {
	out := make([]Item, 0, len(v.state.items))
	for _, item := range v.state.items {
		out = append(out, domain.CloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListContainers returns all containers ordered by identifier.
func (v transactionView) ListContainers() []Container {
	out := make([]Container, 0, len(v.state.containers))
	for _, c := range v.state.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPlacements returns all placements ordered by item identifier.
func (v transactionView) ListPlacements() []Placement {
	out := make([]Placement, 0, len(v.state.placements))
	for _, p := range v.state.placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (v transactionView) FindItem(id string) (Item, bool) {
	item, ok := v.state.items[id]
	if !ok {
		return Item{}, false
	}
	return domain.CloneItem(item), true
}

func (v transactionView) FindContainer(id string) (Container, bool) {
	c, ok := v.state.containers[id]
	return c, ok
}

func (v transactionView) FindPlacement(itemID string) (Placement, bool) {
	p, ok := v.state.placements[itemID]
	return p, ok
}

func (v transactionView) PlacementsIn(containerID string) []Placement {
	return v.state.containerPlacements(containerID)
}

// OccupantsBetween lists the placements of a container lying between its open
// face and target.
func (v transactionView) OccupantsBetween(containerID string, target geometry.Box) []Placement {
	return domain.OccupantsBetween(v.state.containerPlacements(containerID), target)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateItem registers a new item within the transaction.
func (tx *transaction) CreateItem(item Item) (Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := tx.state.items[item.ID]; exists {
		return Item{}, domain.NewError(domain.KindDuplicate, item.ID, "", "item already registered")
	}
	if err := item.Dimensions.Validate(); err != nil {
		return Item{}, domain.NewError(domain.KindInvalidDimensions, item.ID, "", err.Error())
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	tx.state.items[item.ID] = domain.CloneItem(item)
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: domain.CloneItem(item)})
	return domain.CloneItem(item), nil
}

// UpdateItem mutates an item using the provided mutator function. Dimensions
// of a placed item are immutable.
func (tx *transaction) UpdateItem(id string, mutator func(*Item) error) (Item, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return Item{}, domain.ErrNotFound{Entity: domain.EntityItem, ID: id}
	}
	before := domain.CloneItem(current)
	if err := mutator(&current); err != nil {
		return Item{}, err
	}
	current.ID = id
	if _, placed := tx.state.placements[id]; placed && current.Dimensions != before.Dimensions {
		return Item{}, domain.NewError(domain.KindInvalidDimensions, id, "", "cannot resize a placed item")
	}
	if err := current.Dimensions.Validate(); err != nil {
		return Item{}, domain.NewError(domain.KindInvalidDimensions, id, "", err.Error())
	}
	current.UpdatedAt = tx.now
	tx.state.items[id] = domain.CloneItem(current)
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: domain.CloneItem(current)})
	return domain.CloneItem(current), nil
}

// DeleteItem removes an unplaced item from the registry.
func (tx *transaction) DeleteItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityItem, ID: id}
	}
	if p, placed := tx.state.placements[id]; placed {
		return fmt.Errorf("item %q still placed in container %q", id, p.ContainerID)
	}
	delete(tx.state.items, id)
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateContainer registers a new container.
func (tx *transaction) CreateContainer(c Container) (Container, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := tx.state.containers[c.ID]; exists {
		return Container{}, domain.NewError(domain.KindDuplicate, "", c.ID, "container already registered")
	}
	if err := c.Dimensions.Validate(); err != nil {
		return Container{}, domain.NewError(domain.KindInvalidDimensions, "", c.ID, err.Error())
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.containers[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityContainer, Action: domain.ActionCreate, After: c})
	return c, nil
}

// TryPlace validates and records a placement. A rejected placement leaves the
// transaction untouched.
func (tx *transaction) TryPlace(containerID, itemID string, pos geometry.Vec, orientation geometry.Orientation) (Placement, error) {
	c, ok := tx.state.containers[containerID]
	if !ok {
		return Placement{}, domain.NewError(domain.KindContainerNotFound, itemID, containerID, "")
	}
	item, ok := tx.state.items[itemID]
	if !ok {
		return Placement{}, domain.NewError(domain.KindItemNotFound, itemID, containerID, "")
	}
	if existing, placed := tx.state.placements[itemID]; placed {
		return Placement{}, domain.NewError(domain.KindDuplicate, itemID, containerID, "already placed in "+existing.ContainerID)
	}
	extents, err := geometry.Orient(item.Dimensions, orientation)
	if err != nil {
		if errors.Is(err, geometry.ErrInvalidOrientation) {
			return Placement{}, fmt.Errorf("place %s: %w", itemID, err)
		}
		return Placement{}, domain.NewError(domain.KindInvalidDimensions, itemID, containerID, err.Error())
	}
	p := Placement{
		ItemID:      itemID,
		ContainerID: containerID,
		Position:    pos,
		Orientation: orientation,
		Extents:     extents,
		PlacedDay:   tx.state.day,
	}
	if !geometry.Within(c.Dimensions, p.Box()) {
		return Placement{}, domain.NewError(domain.KindOutOfBounds, itemID, containerID,
			fmt.Sprintf("%s at %s exceeds %s", extents, pos, c.Dimensions))
	}
	if hits := domain.Collisions(tx.state.containerPlacements(containerID), p.Box(), itemID); len(hits) > 0 {
		return Placement{}, domain.NewError(domain.KindOverlap, itemID, containerID, "collides with "+hits[0])
	}
	tx.state.placements[itemID] = p
	tx.state.refreshDepths(containerID)
	p = tx.state.placements[itemID]
	tx.recordChange(Change{Entity: domain.EntityPlacement, Action: domain.ActionCreate, After: p})
	return p, nil
}

// RemovePlacement takes an item out of its container.
func (tx *transaction) RemovePlacement(itemID string) (Placement, error) {
	p, ok := tx.state.placements[itemID]
	if !ok {
		return Placement{}, domain.ErrNotFound{Entity: domain.EntityPlacement, ID: itemID}
	}
	delete(tx.state.placements, itemID)
	tx.state.refreshDepths(p.ContainerID)
	tx.recordChange(Change{Entity: domain.EntityPlacement, Action: domain.ActionDelete, Before: p})
	return p, nil
}

// SetDay advances the simulated clock. The clock never moves backwards.
func (tx *transaction) SetDay(day int) error {
	if day < tx.state.day {
		return fmt.Errorf("day %d precedes current day %d", day, tx.state.day)
	}
	before := tx.state.day
	tx.state.day = day
	tx.recordChange(Change{Entity: domain.EntityClock, Action: domain.ActionUpdate, Before: before, After: day})
	return nil
}

// MarkBaseline records the current registry as the reset target.
func (tx *transaction) MarkBaseline() {
	baseline := tx.state.export()
	tx.state.baseline = &baseline
}

// RestoreBaseline replaces the registry with the recorded reset target.
func (tx *transaction) RestoreBaseline() error {
	if tx.state.baseline == nil {
		return errors.New("no baseline recorded")
	}
	baseline := tx.state.baseline
	restored, err := stateFromDomain(*baseline)
	if err != nil {
		return fmt.Errorf("restore baseline: %w", err)
	}
	before := tx.state.day
	restored.baseline = baseline
	tx.state = restored
	tx.recordChange(Change{Entity: domain.EntityClock, Action: domain.ActionUpdate, Before: before, After: restored.day})
	return nil
}
