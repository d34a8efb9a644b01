package core

import (
	"context"
	"path/filepath"
	"testing"

	"stowage/internal/infra/persistence/memory"
	"stowage/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(NewDefaultRulesEngine(), StorageOptions{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(nil, StorageOptions{Driver: "tape"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenPersistentStoreSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "station.db")
	store, err := OpenPersistentStore(NewDefaultRulesEngine(), StorageOptions{SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store for empty driver, got %T", store)
	}
	if s.Path() != path {
		t.Fatalf("expected path %s, got %s", path, s.Path())
	}
	_ = s.Close()
}

func TestServiceSurvivesSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stowage.db")
	open := func() (*Service, *sqlite.Store) {
		store, err := OpenPersistentStore(NewDefaultRulesEngine("waste"), StorageOptions{Driver: StorageSQLite, SQLitePath: path})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return NewService(store), store.(*sqlite.Store)
	}

	svc, store := open()
	mustRegister(t, svc, Container{Base: Base{ID: "C1"}, Zone: "Crew", Dimensions: cube(5)})
	placed := mustPlace(t, svc, Item{Base: Base{ID: "a"}, Dimensions: cube(2), ExpiryDay: intPtr(9)}, "Crew")
	if _, err := svc.AdvanceDay(context.Background(), 2, AdvanceOptions{}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_ = store.Close()

	reopened, store := open()
	defer func() { _ = store.Close() }()
	if got, ok := reopened.GetPlacement(context.Background(), "a"); !ok || got.Position != placed.Position {
		t.Fatalf("expected placement to survive reopen, got %+v", got)
	}
	if reopened.Day(context.Background()) != 2 {
		t.Fatalf("expected day 2, got %d", reopened.Day(context.Background()))
	}
	res, err := reopened.ResetSimulation(context.Background())
	if err != nil || res.Day != 0 {
		t.Fatalf("expected persisted baseline to restore day 0, got %+v %v", res, err)
	}
}
