package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

func seedTx(tx domain.Transaction) error {
	if _, err := tx.CreateContainer(domain.Container{Base: domain.Base{ID: "A"}, Zone: "Crew", Dimensions: geometry.Dimensions{Width: 10, Depth: 10, Height: 10}}); err != nil {
		return err
	}
	expiry := 7
	if _, err := tx.CreateItem(domain.Item{Base: domain.Base{ID: "food"}, Name: "Food", Dimensions: geometry.Dimensions{Width: 2, Depth: 2, Height: 2}, ExpiryDay: &expiry}); err != nil {
		return err
	}
	if _, err := tx.TryPlace("A", "food", geometry.Vec{D: 1}, geometry.OrientWDH); err != nil {
		return err
	}
	tx.MarkBaseline()
	return tx.SetDay(3)
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), seedTx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Day() != 3 {
		t.Fatalf("expected day 3, got %d", reloaded.Day())
	}
	p, ok := reloaded.GetPlacement("food")
	if !ok || p.Position.D != 1 {
		t.Fatalf("expected persisted placement, got %+v", p)
	}
	item, _ := reloaded.GetItem("food")
	if item.ExpiryDay == nil || *item.ExpiryDay != 7 {
		t.Fatalf("expected expiry to persist, got %+v", item)
	}
	baseline, ok := reloaded.Baseline()
	if !ok || baseline.Day != 0 || len(baseline.Placements) != 1 {
		t.Fatalf("expected persisted baseline, got %+v", baseline)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var name string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "state").Scan(&name); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if name != "state" {
		t.Fatalf("expected state table, got %s", name)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := seedTx(tx); err != nil {
			return err
		}
		_, err := tx.TryPlace("A", "food", geometry.Vec{}, geometry.OrientWDH)
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate placement failure")
	}
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM state").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
	_ = store.Close()
}

func TestSQLiteImportStatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	state := domain.State{
		Containers: []domain.Container{{Base: domain.Base{ID: "B"}, Zone: "Lab", Dimensions: geometry.Dimensions{Width: 3, Depth: 3, Height: 3}}},
		Day:        5,
	}
	if err := store.ImportState(state); err != nil {
		t.Fatalf("import: %v", err)
	}
	_ = store.Close()
	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer reloaded.Close()
	exported := reloaded.ExportState()
	if exported.Day != 5 || len(exported.Containers) != 1 {
		t.Fatalf("unexpected state %+v", exported)
	}
}
