package core

import "sort"

// RearrangeAction names a step in an arrangement diff.
type RearrangeAction string

// Rearrangement actions.
const (
	RearrangeMove   RearrangeAction = "move"
	RearrangePlace  RearrangeAction = "place"
	RearrangeRemove RearrangeAction = "remove"
)

// RearrangeStep is one physical move needed to turn one arrangement into
// another.
type RearrangeStep struct {
	Step          int             `json:"step"`
	Action        RearrangeAction `json:"action"`
	ItemID        string          `json:"item_id"`
	FromContainer string          `json:"from_container,omitempty"`
	FromPosition  *Vec            `json:"from_position,omitempty"`
	ToContainer   string          `json:"to_container,omitempty"`
	ToPosition    *Vec            `json:"to_position,omitempty"`
}

// DiffArrangements lists the steps that take the before placements to the
// after placements. Removals come first so moves and placements always land
// in freed space, then moves, then placements; each group is ordered by item
// identifier.
func DiffArrangements(before, after []Placement) []RearrangeStep {
	prev := make(map[string]Placement, len(before))
	for _, p := range before {
		prev[p.ItemID] = p
	}
	next := make(map[string]Placement, len(after))
	for _, p := range after {
		next[p.ItemID] = p
	}
	var removes, moves, places []RearrangeStep
	for id, p := range prev {
		q, ok := next[id]
		switch {
		case !ok:
			removes = append(removes, RearrangeStep{Action: RearrangeRemove, ItemID: id, FromContainer: p.ContainerID, FromPosition: vecPtr(p.Position)})
		case q.ContainerID != p.ContainerID || q.Position != p.Position || q.Orientation != p.Orientation:
			moves = append(moves, RearrangeStep{
				Action:        RearrangeMove,
				ItemID:        id,
				FromContainer: p.ContainerID,
				FromPosition:  vecPtr(p.Position),
				ToContainer:   q.ContainerID,
				ToPosition:    vecPtr(q.Position),
			})
		}
	}
	for id, q := range next {
		if _, ok := prev[id]; !ok {
			places = append(places, RearrangeStep{Action: RearrangePlace, ItemID: id, ToContainer: q.ContainerID, ToPosition: vecPtr(q.Position)})
		}
	}
	var steps []RearrangeStep
	for _, group := range [][]RearrangeStep{removes, moves, places} {
		sort.Slice(group, func(i, j int) bool { return group[i].ItemID < group[j].ItemID })
		steps = append(steps, group...)
	}
	for i := range steps {
		steps[i].Step = i + 1
	}
	return steps
}

func vecPtr(v Vec) *Vec { return &v }
