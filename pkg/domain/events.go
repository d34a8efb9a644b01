package domain

import (
	"encoding/json"
	"time"
)

// EventType names an activity-log entry.
type EventType string

// Activity events emitted by the engine.
const (
	EventPlacement          EventType = "placement"
	EventRetrievalPlanned   EventType = "retrieval_planned"
	EventRetrieval          EventType = "retrieval"
	EventRetrievalCancelled EventType = "retrieval_cancelled"
	EventRestow             EventType = "restow"
	EventDisposal           EventType = "disposal"
	EventWaste              EventType = "waste"
	EventDayBoundary        EventType = "day_boundary"
	EventReset              EventType = "reset"
	EventWasteReturn        EventType = "waste_return"
	EventUndocking          EventType = "undocking"
	EventExport             EventType = "export"
)

// Event is a single activity-log record. Payload carries an optional JSON
// document describing the event in detail.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id,omitempty"`
	ItemID        string    `json:"item_id,omitempty"`
	FromContainer string    `json:"from_container,omitempty"`
	ToContainer   string    `json:"to_container,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Day           int       `json:"day"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       Payload   `json:"payload,omitzero"`
}

// Payload wraps a JSON snapshot attached to an event. Callers unmarshal the
// raw bytes into typed structures as needed.
type Payload struct {
	defined bool
	raw     json.RawMessage
}

// NewPayload builds a payload wrapper from raw JSON. The bytes are cloned so
// callers cannot mutate shared state. A nil slice yields a defined but empty
// payload.
func NewPayload(raw json.RawMessage) Payload {
	payload := Payload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewPayloadFromValue marshals a typed value into a Payload.
func NewPayloadFromValue[T any](value T) (Payload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Payload{}, err
	}
	return NewPayload(raw), nil
}

// Defined reports whether the payload has been initialized.
func (p Payload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p Payload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes, or nil.
func (p Payload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// Decode unmarshals the payload into out.
func (p Payload) Decode(out any) error {
	if p.IsEmpty() {
		return nil
	}
	return json.Unmarshal(p.raw, out)
}

// MarshalJSON emits the wrapped document, or null when empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// UnmarshalJSON stores a copy of the document.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Payload{}
		return nil
	}
	*p = NewPayload(data)
	return nil
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
