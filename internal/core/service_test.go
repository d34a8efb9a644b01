package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"stowage/pkg/domain"
)

func TestNewServiceFromStateRoundTrip(t *testing.T) {
	svc := newTestService(t)
	seedSimulation(t, svc)
	state := svc.ExportState()

	clone, err := NewServiceFromState(state)
	if err != nil {
		t.Fatalf("from state: %v", err)
	}
	if !reflect.DeepEqual(state, clone.ExportState()) {
		t.Fatal("exported state must round-trip")
	}
	plan, err := clone.Retrieve(context.Background(), "milk")
	if err != nil || plan.ContainerID != "S1" {
		t.Fatalf("expected retrievable milk, got %+v %v", plan, err)
	}
}

func TestNewServiceFromStateRejectsOverlap(t *testing.T) {
	state := State{
		Items: []Item{
			{Base: Base{ID: "a"}, Dimensions: cube(2), Status: StatusStored},
			{Base: Base{ID: "b"}, Dimensions: cube(2), Status: StatusStored},
		},
		Containers: []Container{{Base: Base{ID: "C1"}, Dimensions: cube(4)}},
		Placements: []Placement{
			{ItemID: "a", ContainerID: "C1"},
			{ItemID: "b", ContainerID: "C1", Position: Vec{W: 1}},
		},
	}
	if _, err := NewServiceFromState(state); !errors.Is(err, domain.ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}
}

func TestRegisterContainersRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	mustRegister(t, svc, Container{Base: Base{ID: "C1"}, Zone: "Crew", Dimensions: cube(1)})
	if _, _, err := svc.RegisterContainers(context.Background(), Container{Base: Base{ID: "C1"}, Zone: "Crew", Dimensions: cube(1)}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, _, err := svc.RegisterContainers(context.Background(), Container{Base: Base{ID: "C2"}, Dimensions: Dimensions{}}); !errors.Is(err, domain.ErrInvalidDimensions) {
		t.Fatalf("expected invalid dimensions, got %v", err)
	}
}

func TestMarkBaselineRecapturesResetTarget(t *testing.T) {
	svc := newTestService(t)
	seedSimulation(t, svc)
	if _, err := svc.AdvanceDay(context.Background(), 3, AdvanceOptions{}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := svc.MarkBaseline(context.Background()); err != nil {
		t.Fatalf("mark baseline: %v", err)
	}
	if _, err := svc.AdvanceDay(context.Background(), 3, AdvanceOptions{}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	res, err := svc.ResetSimulation(context.Background())
	if err != nil || res.Day != 3 {
		t.Fatalf("expected reset to day 3, got %+v %v", res, err)
	}
}

func TestWithEngineConfig(t *testing.T) {
	svc := newTestService(t, WithEngineConfig(EngineConfig{WasteZones: []string{"Bin"}}))
	cfg := svc.Config()
	if cfg.HighPriorityThreshold != 70 || cfg.PlaceBack || cfg.WasteZones[0] != "Bin" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	mustRegister(t, svc,
		Container{Base: Base{ID: "S1"}, Zone: "Storage", Dimensions: cube(4)},
		Container{Base: Base{ID: "B1"}, Zone: "bin", Dimensions: cube(4)},
	)
	mustPlace(t, svc, Item{Base: Base{ID: "old"}, Dimensions: cube(1), ExpiryDay: intPtr(1)}, "Storage")
	if _, err := svc.AdvanceDay(context.Background(), 1, AdvanceOptions{}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if p, ok := svc.GetPlacement(context.Background(), "old"); !ok || p.ContainerID != "B1" {
		t.Fatalf("expected waste in configured zone, got %+v", p)
	}
}
