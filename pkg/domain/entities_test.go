package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"stowage/pkg/geometry"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestItemLifecycleHelpers(t *testing.T) {
	expiry := 5
	item := Item{UsageLimit: 3, RemainingUses: 0, ExpiryDay: &expiry, Dimensions: geometry.Dimensions{Width: 2, Depth: 3, Height: 4}}
	if !item.Depleted() {
		t.Fatalf("expected depleted item")
	}
	if item.ExpiredOn(4) || !item.ExpiredOn(5) {
		t.Fatalf("expiry must trigger on the expiry day")
	}
	if item.ShippingMass() != 24 {
		t.Fatalf("expected volume fallback, got %v", item.ShippingMass())
	}
	item.Mass = 7
	if item.ShippingMass() != 7 {
		t.Fatalf("expected mass, got %v", item.ShippingMass())
	}
	unlimited := Item{}
	if unlimited.Depleted() {
		t.Fatalf("unlimited items never deplete")
	}
	if !StatusDepleted.IsWaste() || StatusRetrieved.IsWaste() {
		t.Fatalf("unexpected waste classification")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	expiry := 3
	state := State{Items: []Item{{Base: Base{ID: "a"}, ExpiryDay: &expiry}}, Day: 2}
	clone := state.Clone()
	*clone.Items[0].ExpiryDay = 9
	if *state.Items[0].ExpiryDay != 3 {
		t.Fatalf("clone shares expiry pointer")
	}
	if clone.Day != 2 {
		t.Fatalf("expected day to copy")
	}
}

func TestStateNormalize(t *testing.T) {
	state := State{
		Items:      []Item{{Base: Base{ID: "b"}}, {Base: Base{ID: "a"}}},
		Containers: []Container{{Base: Base{ID: "z"}}, {Base: Base{ID: "y"}}},
		Placements: []Placement{{ItemID: "b"}, {ItemID: "a"}},
	}
	state.Normalize()
	if state.Items[0].ID != "a" || state.Containers[0].ID != "y" || state.Placements[0].ItemID != "a" {
		t.Fatalf("expected sorted state, got %+v", state)
	}
}

func TestContainerInZoneIgnoresCase(t *testing.T) {
	c := Container{Zone: "Waste"}
	if !c.InZone("waste") {
		t.Fatalf("expected case-insensitive zone match")
	}
}

func TestPayloadRoundTripAndClone(t *testing.T) {
	raw := json.RawMessage(`{"id":"cloned"}`)
	payload := NewPayload(raw)
	raw[2] = 'X'
	first := payload.Raw()
	first[2] = 'Y'
	if string(payload.Raw()) != `{"id":"cloned"}` {
		t.Fatalf("expected stored payload to remain unchanged, got %s", payload.Raw())
	}

	event := Event{ID: "e1", Type: EventPlacement, Payload: payload}
	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	var body map[string]string
	if err := decoded.Payload.Decode(&body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body["id"] != "cloned" {
		t.Fatalf("unexpected payload %v", body)
	}

	if !(Payload{}).IsEmpty() {
		t.Fatalf("zero payload should be empty")
	}
	if _, err := NewPayloadFromValue(failingPayload{}); err == nil {
		t.Fatalf("expected marshal error for failing payload")
	}
}
