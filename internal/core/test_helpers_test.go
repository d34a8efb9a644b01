package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func intPtr(v int) *int {
	return &v
}

func cube(side float64) Dimensions {
	return Dimensions{Width: side, Depth: side, Height: side}
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewInMemoryService(nil, opts...)
}

func mustRegister(t *testing.T, svc *Service, containers ...Container) {
	t.Helper()
	if _, _, err := svc.RegisterContainers(context.Background(), containers...); err != nil {
		t.Fatalf("register containers: %v", err)
	}
}

func mustPlace(t *testing.T, svc *Service, item Item, zones ...string) Placement {
	t.Helper()
	p, err := svc.Place(context.Background(), item, zones)
	if err != nil {
		t.Fatalf("place %s: %v", item.ID, err)
	}
	return p
}

func mustItem(t *testing.T, svc *Service, id string) Item {
	t.Helper()
	item, ok := svc.GetItem(context.Background(), id)
	if !ok {
		t.Fatalf("item %s not found", id)
	}
	return item
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(_ context.Context, events ...Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

func (c *captureSink) ofType(typ string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if string(e.Type) == typ {
			out = append(out, e)
		}
	}
	return out
}

// assertLayout fails when any two placements in a container intersect or a
// placement leaves its container.
func assertLayout(t *testing.T, svc *Service) {
	t.Helper()
	state := svc.ExportState()
	containers := make(map[string]Container, len(state.Containers))
	for _, c := range state.Containers {
		containers[c.ID] = c
	}
	for i, p := range state.Placements {
		c, ok := containers[p.ContainerID]
		if !ok {
			t.Fatalf("placement %s references unknown container %s", p.ItemID, p.ContainerID)
		}
		if !withinContainer(c, p) {
			t.Fatalf("placement %s at %s exceeds container %s", p.ItemID, p.Position, c.ID)
		}
		for _, q := range state.Placements[i+1:] {
			if q.ContainerID == p.ContainerID && boxesIntersect(p, q) {
				t.Fatalf("placements %s and %s overlap", p.ItemID, q.ItemID)
			}
		}
	}
}
