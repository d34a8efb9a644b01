package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

// candidate is the best position found for an item inside one container.
type candidate struct {
	container   Container
	orientation geometry.Orientation
	position    Vec
	extents     Dimensions
	// depth is the retrieval depth the item would have once placed.
	depth int
}

func (c candidate) faceArea() float64 { return c.extents.FaceArea() }

// better reports whether a should be preferred over b. High-priority items
// favour the shallowest retrieval depth; others favour the smallest open-face
// footprint. Ties fall to position depth, then orientation code.
func better(a, b candidate, highPriority bool) bool {
	if highPriority {
		if a.depth != b.depth {
			return a.depth < b.depth
		}
	} else if d := a.faceArea() - b.faceArea(); d < -geometry.Epsilon || d > geometry.Epsilon {
		return d < 0
	}
	if a.position.D != b.position.D {
		return a.position.D < b.position.D
	}
	return a.orientation < b.orientation
}

// axisStops lists the coordinates worth probing along one axis: the
// container wall and the far edge of every occupant, keeping only stops that
// leave room for extent.
func axisStops(limit, extent float64, occupants []Placement, axis geometry.Axis) []float64 {
	stops := []float64{0}
	for _, p := range occupants {
		edge := p.End().Get(axis)
		if edge+extent <= limit+geometry.Epsilon {
			stops = append(stops, edge)
		}
	}
	sort.Float64s(stops)
	out := stops[:1]
	for _, v := range stops[1:] {
		if v-out[len(out)-1] > geometry.Epsilon {
			out = append(out, v)
		}
	}
	return out
}

// firstFit scans candidate corners in depth, width, height order and returns
// the first position where a box of the given extents is free.
func firstFit(limits Dimensions, occupants []Placement, extents Dimensions) (Vec, bool) {
	if extents.Width > limits.Width+geometry.Epsilon ||
		extents.Depth > limits.Depth+geometry.Epsilon ||
		extents.Height > limits.Height+geometry.Epsilon {
		return Vec{}, false
	}
	ds := axisStops(limits.Depth, extents.Depth, occupants, geometry.AxisDepth)
	ws := axisStops(limits.Width, extents.Width, occupants, geometry.AxisWidth)
	hs := axisStops(limits.Height, extents.Height, occupants, geometry.AxisHeight)
	for _, d := range ds {
		for _, w := range ws {
			for _, h := range hs {
				pos := Vec{W: w, D: d, H: h}
				box := geometry.Box{Origin: pos, Size: extents}
				if len(domain.Collisions(occupants, box, "")) == 0 {
					return pos, true
				}
			}
		}
	}
	return Vec{}, false
}

// searchContainer evaluates all six orientations of item in container c.
func searchContainer(c Container, occupants []Placement, item Item, highPriority bool) (candidate, string) {
	var (
		best  candidate
		found bool
		fits  bool
	)
	for _, o := range geometry.Orientations() {
		extents, err := geometry.Orient(item.Dimensions, o)
		if err != nil {
			continue
		}
		pos, ok := firstFit(c.Dimensions, occupants, extents)
		if extents.Width <= c.Dimensions.Width+geometry.Epsilon &&
			extents.Depth <= c.Dimensions.Depth+geometry.Epsilon &&
			extents.Height <= c.Dimensions.Height+geometry.Epsilon {
			fits = true
		}
		if !ok {
			continue
		}
		cand := candidate{container: c, orientation: o, position: pos, extents: extents}
		if highPriority {
			trial := Placement{ItemID: item.ID, ContainerID: c.ID, Position: pos, Extents: extents}
			cand.depth = len(domain.Blockers(append(occupants[:len(occupants):len(occupants)], trial), trial))
		}
		if !found || better(cand, best, highPriority) {
			best, found = cand, true
		}
	}
	switch {
	case found:
		return best, ""
	case !fits:
		return candidate{}, fmt.Sprintf("item %s larger than container %s in every orientation", item.Dimensions, c.Dimensions)
	default:
		return candidate{}, "no free position"
	}
}

// containersForZones returns the containers matching zones, grouped in zone
// order and sorted by identifier within a zone. Each container appears once.
func containersForZones(view TransactionView, zones []string) []Container {
	all := view.ListContainers()
	seen := make(map[string]bool)
	var out []Container
	for _, zone := range zones {
		for _, c := range all {
			if seen[c.ID] || !strings.EqualFold(c.Zone, zone) {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

// locate runs the placement search over containers in order. The first
// container yielding a candidate wins.
func (s *Service) locate(view TransactionView, item Item, containers []Container) (candidate, error) {
	high := item.Priority >= s.cfg.HighPriorityThreshold
	attempts := make([]domain.Attempt, 0, len(containers))
	for _, c := range containers {
		occupants := view.PlacementsIn(c.ID)
		cand, reason := searchContainer(c, occupants, item, high)
		if reason == "" {
			return cand, nil
		}
		attempts = append(attempts, domain.Attempt{ContainerID: c.ID, Zone: c.Zone, Reason: reason})
	}
	return candidate{}, &domain.InfeasibleError{ItemID: item.ID, Attempts: attempts}
}

// commit records the chosen candidate through the registry.
func commit(tx Transaction, itemID string, cand candidate) (Placement, error) {
	return tx.TryPlace(cand.container.ID, itemID, cand.position, cand.orientation)
}

// placeZones lists the zones an item may go to: the explicit ranking, or the
// item's preferred zone when none is given, followed by fallbacks.
func placeZones(item Item, zones []string, fallback []string) []string {
	var out []string
	if len(zones) > 0 {
		out = append(out, zones...)
	} else if item.PreferredZone != "" {
		out = append(out, item.PreferredZone)
	}
	return append(out, fallback...)
}

// prepareItem validates an incoming item and fills lifecycle defaults.
func prepareItem(item Item) (Item, error) {
	if err := item.Dimensions.Validate(); err != nil {
		return Item{}, domain.NewError(domain.KindInvalidDimensions, item.ID, "", err.Error())
	}
	if item.Limited() && item.RemainingUses == 0 {
		item.RemainingUses = item.UsageLimit
	}
	item.Status = domain.StatusStored
	item.Flagged = false
	item.FlagReason = ""
	item.WasteReason = ""
	item.Manifest = ""
	return item, nil
}

// placeNew stores a new or previously retrieved item.
func (s *Service) placeNew(tx Transaction, act *activity, item Item, zones []string) (Placement, error) {
	view := tx.Snapshot()
	existing, known := view.FindItem(item.ID)
	if known {
		if existing.Status == domain.StatusStored {
			return Placement{}, domain.NewError(domain.KindDuplicate, item.ID, "", "item already stored")
		}
		if existing.Status.IsWaste() {
			return Placement{}, domain.NewError(domain.KindDuplicate, item.ID, "", "item is waste")
		}
		// Spent uses stay spent; a used-up item is swept as depleted on the next tick.
		item.UsageLimit = existing.UsageLimit
		item.RemainingUses = existing.RemainingUses
	}
	cand, err := s.locate(view, item, containersForZones(view, zones))
	if err != nil {
		return Placement{}, err
	}
	if known {
		if _, err := tx.UpdateItem(item.ID, func(current *Item) error {
			created := current.CreatedAt
			*current = item
			current.CreatedAt = created
			return nil
		}); err != nil {
			return Placement{}, err
		}
	} else if _, err := tx.CreateItem(item); err != nil {
		return Placement{}, err
	}
	p, err := commit(tx, item.ID, cand)
	if err != nil {
		return Placement{}, err
	}
	act.record(tx, Event{Type: domain.EventPlacement, ItemID: item.ID, ToContainer: p.ContainerID, Reason: "placed at " + describe(p)})
	return p, nil
}

// Place finds a legal position for item in the ranked zones and commits it.
// When zones is empty the item's preferred zone is used.
func (s *Service) Place(ctx context.Context, item Item, zones []string) (Placement, error) {
	prepared, err := prepareItem(item)
	if err != nil {
		return Placement{}, err
	}
	var placed Placement
	_, err = s.run(ctx, "place", func(tx Transaction, act *activity) error {
		var err error
		placed, err = s.placeNew(tx, act, prepared, placeZones(prepared, zones, nil))
		return err
	})
	if errors.Is(err, domain.ErrInfeasible) {
		s.observeInfeasible(ctx, item.ID)
	}
	return placed, err
}

// Unplaced reports an item a batch could not store.
type Unplaced struct {
	ItemID   string           `json:"item_id"`
	Reason   string           `json:"reason"`
	Attempts []domain.Attempt `json:"attempts,omitempty"`
}

// BatchResult lists the outcome of PlaceBatch.
type BatchResult struct {
	Placements []Placement `json:"placements"`
	Unplaced   []Unplaced  `json:"unplaced,omitempty"`
}

// SortForPlacement orders items by priority descending, then identifier.
func SortForPlacement(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ID < items[j].ID
	})
}

// PlaceBatch places several items in one transaction, highest priority
// first. Each item tries its preferred zone, then the fallback zones. Items
// that cannot be stored are reported and left out of the registry.
func (s *Service) PlaceBatch(ctx context.Context, items []Item, fallbackZones []string) (BatchResult, error) {
	ordered := append([]Item(nil), items...)
	SortForPlacement(ordered)
	var out BatchResult
	_, err := s.run(ctx, "place_batch", func(tx Transaction, act *activity) error {
		out = BatchResult{}
		for _, raw := range ordered {
			item, err := prepareItem(raw)
			if err == nil {
				var p Placement
				p, err = s.placeNew(tx, act, item, placeZones(item, nil, fallbackZones))
				if err == nil {
					out.Placements = append(out.Placements, p)
					continue
				}
			}
			miss := Unplaced{ItemID: raw.ID, Reason: err.Error()}
			var infeasible *domain.InfeasibleError
			if errors.As(err, &infeasible) {
				miss.Attempts = infeasible.Attempts
			} else if domain.KindOf(err) == "" {
				return err
			}
			out.Unplaced = append(out.Unplaced, miss)
		}
		return nil
	})
	if err == nil {
		for _, miss := range out.Unplaced {
			s.observeInfeasible(ctx, miss.ItemID)
		}
	}
	return out, err
}
