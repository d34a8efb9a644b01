package domain

import (
	"context"

	"stowage/pkg/geometry"
)

// Transaction exposes the registry operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)
	DeleteItem(id string) error
	CreateContainer(Container) (Container, error)
	// TryPlace records the item at pos in the given orientation, failing with
	// an out-of-bounds or overlap error without mutating state.
	TryPlace(containerID, itemID string, pos geometry.Vec, orientation geometry.Orientation) (Placement, error)
	RemovePlacement(itemID string) (Placement, error)
	SetDay(day int) error
	// MarkBaseline records the current registry as the reset target.
	MarkBaseline()
	// RestoreBaseline replaces the registry with the recorded baseline.
	RestoreBaseline() error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	OccupantsBetween(containerID string, target geometry.Box) []Placement
	HasBaseline() bool
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() State
	ImportState(State) error
	Baseline() (State, bool)
}
