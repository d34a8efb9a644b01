package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

func dims(w, d, h float64) geometry.Dimensions {
	return geometry.Dimensions{Width: w, Depth: d, Height: h}
}

func seed(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateContainer(domain.Container{Base: domain.Base{ID: "A"}, Zone: "Crew", Dimensions: dims(10, 10, 10)}); err != nil {
			return err
		}
		for _, id := range []string{"a", "b", "c"} {
			if _, err := tx.CreateItem(domain.Item{Base: domain.Base{ID: id}, Name: id, Dimensions: dims(2, 2, 2)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	seed(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, err := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH)
		if err != nil {
			return err
		}
		if p.Depth != 0 || p.Extents != dims(2, 2, 2) {
			t.Fatalf("unexpected placement %+v", p)
		}
		if len(tx.Snapshot().PlacementsIn("A")) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	item, ok := store.GetItem("a")
	if !ok || !item.CreatedAt.Equal(fixed) {
		t.Fatalf("expected item with fixed timestamp, got %+v", item)
	}
	snapshot := store.ExportState()
	if err := store.ImportState(domain.State{}); err != nil {
		t.Fatalf("import empty: %v", err)
	}
	if _, ok := store.GetPlacement("a"); ok {
		t.Fatalf("expected cleared state")
	}
	if err := store.ImportState(snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := store.GetPlacement("a"); !ok {
		t.Fatalf("expected restored placement")
	}
	if store.RulesEngine() == nil || store.NowFunc() == nil {
		t.Fatalf("expected engine and clock")
	}
}

func TestTryPlaceRejectsWithoutMutation(t *testing.T) {
	store := NewStore(nil)
	seed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH); err != nil {
			return err
		}
		if _, err := tx.TryPlace("A", "b", geometry.Vec{W: 1}, geometry.OrientWDH); !errors.Is(err, domain.ErrOverlap) {
			t.Fatalf("expected overlap, got %v", err)
		}
		if _, err := tx.TryPlace("A", "b", geometry.Vec{W: 9}, geometry.OrientWDH); !errors.Is(err, domain.ErrOutOfBounds) {
			t.Fatalf("expected out of bounds, got %v", err)
		}
		if _, err := tx.TryPlace("missing", "b", geometry.Vec{}, geometry.OrientWDH); !errors.Is(err, domain.ErrContainerNotFound) {
			t.Fatalf("expected container not found, got %v", err)
		}
		if _, err := tx.TryPlace("A", "ghost", geometry.Vec{}, geometry.OrientWDH); !errors.Is(err, domain.ErrItemNotFound) {
			t.Fatalf("expected item not found, got %v", err)
		}
		if _, err := tx.TryPlace("A", "a", geometry.Vec{W: 4}, geometry.OrientWDH); !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("expected duplicate placement, got %v", err)
		}
		if _, err := tx.TryPlace("A", "b", geometry.Vec{W: 4}, geometry.Orientation(9)); !errors.Is(err, geometry.ErrInvalidOrientation) {
			t.Fatalf("expected invalid orientation, got %v", err)
		}
		if got := len(tx.Snapshot().PlacementsIn("A")); got != 1 {
			t.Fatalf("rejected placements must not mutate, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestDepthsAndOccupantsBetween(t *testing.T) {
	store := NewStore(nil)
	seed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for i, id := range []string{"a", "b", "c"} {
			if _, err := tx.TryPlace("A", id, geometry.Vec{D: float64(2 * i)}, geometry.OrientWDH); err != nil {
				return err
			}
		}
		view := tx.Snapshot()
		c, _ := view.FindPlacement("c")
		if c.Depth != 2 {
			t.Fatalf("expected depth 2 for back item, got %d", c.Depth)
		}
		between := view.OccupantsBetween("A", c.Box())
		if len(between) != 2 || between[0].ItemID != "a" {
			t.Fatalf("unexpected occupants %+v", between)
		}
		if _, err := tx.RemovePlacement("a"); err != nil {
			return err
		}
		c, _ = tx.Snapshot().FindPlacement("c")
		if c.Depth != 1 {
			t.Fatalf("expected depth to drop after removal, got %d", c.Depth)
		}
		if _, err := tx.RemovePlacement("a"); !errors.Is(err, domain.ErrItemNotFound) {
			t.Fatalf("expected missing placement, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestStoreRuleViolationRollsBack(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	seed(t, store)
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH)
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if _, ok := store.GetPlacement("a"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestTransactionErrorDiscardsChanges(t *testing.T) {
	store := NewStore(nil)
	seed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := store.GetPlacement("a"); ok {
		t.Fatalf("failed transaction must not commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if len(changes) > 0 {
		res.Merge(domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}})
	}
	return res, nil
}

func TestItemCRUDGuards(t *testing.T) {
	store := NewStore(nil)
	seed(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateItem(domain.Item{Base: domain.Base{ID: "a"}, Dimensions: dims(1, 1, 1)}); !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("expected duplicate item, got %v", err)
		}
		if _, err := tx.CreateItem(domain.Item{Base: domain.Base{ID: "bad"}, Dimensions: dims(0, 1, 1)}); !errors.Is(err, domain.ErrInvalidDimensions) {
			t.Fatalf("expected invalid dimensions, got %v", err)
		}
		generated, err := tx.CreateItem(domain.Item{Dimensions: dims(1, 1, 1)})
		if err != nil || generated.ID == "" {
			t.Fatalf("expected generated id, got %+v %v", generated, err)
		}
		if _, err := tx.CreateContainer(domain.Container{Base: domain.Base{ID: "A"}, Dimensions: dims(1, 1, 1)}); !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("expected duplicate container, got %v", err)
		}
		if _, err := tx.UpdateItem("missing", func(*domain.Item) error { return nil }); !errors.Is(err, domain.ErrItemNotFound) {
			t.Fatalf("expected missing item, got %v", err)
		}
		if _, err := tx.UpdateItem("a", func(*domain.Item) error { return fmt.Errorf("boom") }); err == nil {
			t.Fatalf("expected mutator error")
		}
		if _, err := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH); err != nil {
			return err
		}
		if _, err := tx.UpdateItem("a", func(i *domain.Item) error { i.Dimensions = dims(3, 3, 3); return nil }); !errors.Is(err, domain.ErrInvalidDimensions) {
			t.Fatalf("expected resize rejection, got %v", err)
		}
		if err := tx.DeleteItem("a"); err == nil {
			t.Fatalf("expected placed item delete to fail")
		}
		if err := tx.DeleteItem("b"); err != nil {
			return err
		}
		if err := tx.DeleteItem("b"); !errors.Is(err, domain.ErrItemNotFound) {
			t.Fatalf("expected missing delete, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestClockAndBaseline(t *testing.T) {
	store := NewStore(nil)
	seed(t, store)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.RestoreBaseline(); err == nil {
			t.Fatalf("expected missing baseline error")
		}
		tx.MarkBaseline()
		return nil
	})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	baseline, ok := store.Baseline()
	if !ok || len(baseline.Items) != 3 {
		t.Fatalf("expected baseline with items, got %+v", baseline)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.TryPlace("A", "a", geometry.Vec{}, geometry.OrientWDH); err != nil {
			return err
		}
		if err := tx.SetDay(4); err != nil {
			return err
		}
		if err := tx.SetDay(3); err == nil {
			t.Fatalf("expected clock regression error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if store.Day() != 4 {
		t.Fatalf("expected day 4, got %d", store.Day())
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if !tx.Snapshot().HasBaseline() {
			t.Fatalf("expected baseline visible")
		}
		return tx.RestoreBaseline()
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if store.Day() != 0 {
		t.Fatalf("expected day reset, got %d", store.Day())
	}
	if _, ok := store.GetPlacement("a"); ok {
		t.Fatalf("expected placements reset")
	}
}

func TestImportStateValidatesLayout(t *testing.T) {
	store := NewStore(nil)
	base := domain.State{
		Containers: []domain.Container{{Base: domain.Base{ID: "A"}, Dimensions: dims(4, 4, 4)}},
		Items: []domain.Item{
			{Base: domain.Base{ID: "a"}, Dimensions: dims(2, 2, 2)},
			{Base: domain.Base{ID: "b"}, Dimensions: dims(2, 2, 2)},
		},
	}
	overlapping := base.Clone()
	overlapping.Placements = []domain.Placement{
		{ItemID: "a", ContainerID: "A"},
		{ItemID: "b", ContainerID: "A", Position: geometry.Vec{W: 1}},
	}
	if err := store.ImportState(overlapping); !errors.Is(err, domain.ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}
	outside := base.Clone()
	outside.Placements = []domain.Placement{{ItemID: "a", ContainerID: "A", Position: geometry.Vec{H: 3}}}
	if err := store.ImportState(outside); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
	orphan := base.Clone()
	orphan.Placements = []domain.Placement{{ItemID: "a", ContainerID: "Z"}}
	if err := store.ImportState(orphan); !errors.Is(err, domain.ErrContainerNotFound) {
		t.Fatalf("expected missing container, got %v", err)
	}
	valid := base.Clone()
	valid.Placements = []domain.Placement{
		{ItemID: "a", ContainerID: "A"},
		{ItemID: "b", ContainerID: "A", Position: geometry.Vec{D: 2}},
	}
	if err := store.ImportState(valid); err != nil {
		t.Fatalf("import: %v", err)
	}
	p, _ := store.GetPlacement("b")
	if p.Depth != 1 || p.Extents != dims(2, 2, 2) {
		t.Fatalf("expected derived fields, got %+v", p)
	}
	if err := store.ImportBaseline(valid); err != nil {
		t.Fatalf("import baseline: %v", err)
	}
	if _, ok := store.Baseline(); !ok {
		t.Fatalf("expected baseline")
	}
}
