package domain

import (
	"sort"

	"stowage/pkg/geometry"
)

// InFront reports whether p lies between the open face and target: its far
// depth edge is no deeper than the target's near edge and its width-height
// cross-section overlaps the target's.
func InFront(p Placement, target geometry.Box) bool {
	return p.End().D <= target.Origin.D+geometry.Epsilon && geometry.OverlapsFace(p.Box(), target)
}

// OccupantsBetween returns placements directly between the open face and
// target, nearest to the face first.
func OccupantsBetween(placements []Placement, target geometry.Box) []Placement {
	var out []Placement
	for _, p := range placements {
		if InFront(p, target) {
			out = append(out, p)
		}
	}
	SortFaceFirst(out)
	return out
}

// Blockers returns every placement that must be removed before target can be
// pulled out through the open face. Blockers of blockers are included. The
// result is ordered so removing it front to back never removes an item that
// is still obstructed.
func Blockers(placements []Placement, target Placement) []Placement {
	seen := map[string]bool{target.ItemID: true}
	queue := []geometry.Box{target.Box()}
	var out []Placement
	for len(queue) > 0 {
		box := queue[0]
		queue = queue[1:]
		for _, p := range placements {
			if seen[p.ItemID] || !InFront(p, box) {
				continue
			}
			seen[p.ItemID] = true
			out = append(out, p)
			queue = append(queue, p.Box())
		}
	}
	SortFaceFirst(out)
	return out
}

// SortFaceFirst orders placements by near depth edge, then item identifier.
func SortFaceFirst(placements []Placement) {
	sort.SliceStable(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		if a.Position.D != b.Position.D {
			return a.Position.D < b.Position.D
		}
		return a.ItemID < b.ItemID
	})
}

// RefreshDepths recomputes the Depth field of every placement in the slice,
// which must all belong to the same container.
func RefreshDepths(placements []Placement) {
	for i := range placements {
		placements[i].Depth = len(Blockers(placements, placements[i]))
	}
}

// Collisions returns the item IDs of placements whose volume intersects box.
func Collisions(placements []Placement, box geometry.Box, ignore string) []string {
	var ids []string
	for _, p := range placements {
		if p.ItemID == ignore {
			continue
		}
		if geometry.Intersects(p.Box(), box) {
			ids = append(ids, p.ItemID)
		}
	}
	sort.Strings(ids)
	return ids
}
