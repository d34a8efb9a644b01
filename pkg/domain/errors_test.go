package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(KindOverlap, "food-1", "A", "collides with food-2"))
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected overlap kind to match sentinel")
	}
	if errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("did not expect out of bounds match")
	}
	if KindOf(err) != KindOverlap {
		t.Fatalf("expected overlap kind, got %q", KindOf(err))
	}
	msg := err.Error()
	for _, want := range []string{"overlap", "item=food-1", "container=A", "collides with food-2"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestInfeasibleErrorMatchesSentinel(t *testing.T) {
	err := error(&InfeasibleError{ItemID: "x", Attempts: []Attempt{{ContainerID: "A", Reason: "full"}}})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected infeasible match")
	}
	if KindOf(err) != KindInfeasible {
		t.Fatalf("expected infeasible kind")
	}
	if !strings.Contains(err.Error(), "1 containers tried") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	empty := &InfeasibleError{ItemID: "y"}
	if !strings.Contains(empty.Error(), "no candidate containers") {
		t.Fatalf("unexpected message %q", empty.Error())
	}
}

func TestErrNotFoundMapsKinds(t *testing.T) {
	if !errors.Is(ErrNotFound{Entity: EntityItem, ID: "a"}, ErrItemNotFound) {
		t.Fatalf("expected item not found mapping")
	}
	if !errors.Is(ErrNotFound{Entity: EntityContainer, ID: "a"}, ErrContainerNotFound) {
		t.Fatalf("expected container not found mapping")
	}
	if errors.Is(ErrNotFound{Entity: EntityClock, ID: "a"}, ErrItemNotFound) {
		t.Fatalf("clock should not map to item kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty kind for plain error")
	}
}
