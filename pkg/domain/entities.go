// Package domain defines the storage entities, transactional contracts, rules
// and error kinds shared by the placement engine and its persistence backends.
package domain

import (
	"sort"
	"strings"
	"time"

	"stowage/pkg/geometry"
)

// EntityType identifies a domain entity for auditing and rules evaluation.
type EntityType string

// Supported domain entity types.
const (
	EntityItem      EntityType = "item"
	EntityContainer EntityType = "container"
	EntityPlacement EntityType = "placement"
	// EntityClock is the simulated day counter.
	EntityClock EntityType = "clock"
)

// ItemStatus captures where an item sits in its lifecycle.
type ItemStatus string

// Item lifecycle states.
const (
	StatusStored    ItemStatus = "stored"
	StatusRetrieved ItemStatus = "retrieved"
	StatusWaste     ItemStatus = "waste"
	StatusDepleted  ItemStatus = "depleted"
)

// IsWaste reports whether the status marks the item as waste.
func (s ItemStatus) IsWaste() bool {
	return s == StatusWaste || s == StatusDepleted
}

// WasteReason explains why an item was classified as waste.
type WasteReason string

// Waste reasons.
const (
	WasteExpired  WasteReason = "Expired"
	WasteDepleted WasteReason = "Out of Uses"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for identified records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a physical supply tracked by the station.
type Item struct {
	Base
	Name       string              `json:"name"`
	Dimensions geometry.Dimensions `json:"dimensions"`
	Mass       float64             `json:"mass"`
	Priority   int                 `json:"priority"`
	// UsageLimit of zero means the item has no use limit.
	UsageLimit    int         `json:"usage_limit"`
	RemainingUses int         `json:"remaining_uses"`
	DailyUsage    int         `json:"daily_usage,omitempty"`
	ExpiryDay     *int        `json:"expiry_day,omitempty"`
	PreferredZone string      `json:"preferred_zone"`
	Status        ItemStatus  `json:"status"`
	WasteReason   WasteReason `json:"waste_reason,omitempty"`
	// Flagged is set when the item became waste but could not be moved to a
	// waste zone.
	Flagged    bool   `json:"flagged,omitempty"`
	FlagReason string `json:"flag_reason,omitempty"`
	// Manifest is the undocking container the item was loaded into for return.
	Manifest string `json:"manifest,omitempty"`
}

// Limited reports whether the item carries a finite usage count.
func (i Item) Limited() bool {
	return i.UsageLimit > 0
}

// Depleted reports whether a limited item has no remaining uses.
func (i Item) Depleted() bool {
	return i.Limited() && i.RemainingUses <= 0
}

// ExpiredOn reports whether the expiry day is on or before day.
func (i Item) ExpiredOn(day int) bool {
	return i.ExpiryDay != nil && *i.ExpiryDay <= day
}

// Volume returns the item's bounding volume.
func (i Item) Volume() float64 {
	return i.Dimensions.Volume()
}

// ShippingMass returns the mass used for return manifests. Items registered
// without a mass fall back to their volume.
func (i Item) ShippingMass() float64 {
	if i.Mass > 0 {
		return i.Mass
	}
	return i.Volume()
}

// Container is an open-faced box inside a zone.
type Container struct {
	Base
	Zone       string              `json:"zone"`
	Dimensions geometry.Dimensions `json:"dimensions"`
}

// Bounds returns the container's internal volume anchored at the origin.
func (c Container) Bounds() geometry.Box {
	return geometry.Box{Size: c.Dimensions}
}

// InZone reports whether the container belongs to zone, ignoring case.
func (c Container) InZone(zone string) bool {
	return strings.EqualFold(c.Zone, zone)
}

// Placement records where an item sits inside a container.
type Placement struct {
	ItemID      string               `json:"item_id"`
	ContainerID string               `json:"container_id"`
	Position    geometry.Vec         `json:"position"`
	Orientation geometry.Orientation `json:"orientation"`
	Extents     geometry.Dimensions  `json:"extents"`
	// Depth is the number of items that must be displaced to reach this one.
	Depth     int `json:"depth"`
	PlacedDay int `json:"placed_day"`
}

// Box returns the occupied volume.
func (p Placement) Box() geometry.Box {
	return geometry.Box{Origin: p.Position, Size: p.Extents}
}

// End returns the far corner of the occupied volume.
func (p Placement) End() geometry.Vec {
	return p.Box().Max()
}

// State is a full, portable copy of the registry and clock.
type State struct {
	Items      []Item      `json:"items"`
	Containers []Container `json:"containers"`
	Placements []Placement `json:"placements"`
	Day        int         `json:"day"`
}

// Normalize sorts every collection by identifier so equal states compare equal.
func (s *State) Normalize() {
	sort.Slice(s.Items, func(i, j int) bool { return s.Items[i].ID < s.Items[j].ID })
	sort.Slice(s.Containers, func(i, j int) bool { return s.Containers[i].ID < s.Containers[j].ID })
	sort.Slice(s.Placements, func(i, j int) bool { return s.Placements[i].ItemID < s.Placements[j].ItemID })
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{Day: s.Day}
	out.Items = make([]Item, len(s.Items))
	for i, item := range s.Items {
		out.Items[i] = CloneItem(item)
	}
	out.Containers = append([]Container(nil), s.Containers...)
	out.Placements = append([]Placement(nil), s.Placements...)
	return out
}

// CloneItem copies an item including its pointer fields.
func CloneItem(item Item) Item {
	if item.ExpiryDay != nil {
		day := *item.ExpiryDay
		item.ExpiryDay = &day
	}
	return item
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}
