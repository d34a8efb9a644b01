package core

import (
	"context"
	"errors"
	"testing"

	"stowage/pkg/domain"
)

func TestSearchPrefersCheapestRetrieval(t *testing.T) {
	svc := newTestService(t)
	seedTunnel(t, svc)
	mustRegister(t, svc, Container{Base: Base{ID: "T2"}, Zone: "Lab", Dimensions: cube(10)})
	mustPlace(t, svc, Item{Base: Base{ID: "spare"}, Name: "wrench", Dimensions: cube(2)}, "Lab")

	res, err := svc.Search(context.Background(), SearchQuery{Name: "WRENCH"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Item.ID != "spare" || res.Cost != 0 || res.Matches != 2 {
		t.Fatalf("expected the unobstructed wrench, got %+v", res)
	}
	if len(svc.PendingRetrievals()) != 0 {
		t.Fatal("search must not stage plans")
	}

	res, err = svc.Search(context.Background(), SearchQuery{ItemID: "back"})
	if err != nil {
		t.Fatalf("search by id: %v", err)
	}
	if res.Cost != 1 || len(res.Steps) != 2 || res.Placement.ContainerID != "T1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearchTieBreaksOnExpiry(t *testing.T) {
	svc := newTestService(t)
	mustRegister(t, svc, Container{Base: Base{ID: "C1"}, Zone: "Crew", Dimensions: cube(10)})
	mustPlace(t, svc, Item{Base: Base{ID: "a"}, Name: "Ration", Dimensions: cube(2), ExpiryDay: intPtr(20)}, "Crew")
	mustPlace(t, svc, Item{Base: Base{ID: "b"}, Name: "Ration", Dimensions: cube(2), ExpiryDay: intPtr(10)}, "Crew")
	mustPlace(t, svc, Item{Base: Base{ID: "c"}, Name: "Ration", Dimensions: cube(2)}, "Crew")

	res, err := svc.Search(context.Background(), SearchQuery{Name: "ration"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Item.ID != "b" {
		t.Fatalf("expected earliest expiry b, got %s", res.Item.ID)
	}
}

func TestSearchErrors(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Search(context.Background(), SearchQuery{}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected empty query error, got %v", err)
	}
	if _, err := svc.Search(context.Background(), SearchQuery{Name: "nothing"}); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}
