package core

import (
	"context"
	"fmt"

	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

// NewNoOverlapRule returns the rule blocking commits that leave two
// placements of one container intersecting.
func NewNoOverlapRule() domain.Rule {
	return noOverlapRule{}
}

type noOverlapRule struct{}

func (noOverlapRule) Name() string { return "no_overlap" }

func (noOverlapRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, container := range view.ListContainers() {
		placements := view.PlacementsIn(container.ID)
		for i := range placements {
			for j := i + 1; j < len(placements); j++ {
				if !geometry.Intersects(placements[i].Box(), placements[j].Box()) {
					continue
				}
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "no_overlap",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("items %s and %s overlap in container %s", placements[i].ItemID, placements[j].ItemID, container.ID),
					Entity:   domain.EntityContainer,
					EntityID: container.ID,
				})
			}
		}
	}
	return res, nil
}

// NewWithinBoundsRule returns the rule blocking placements that exceed their
// container or disagree with the item's oriented dimensions.
func NewWithinBoundsRule() domain.Rule {
	return withinBoundsRule{}
}

type withinBoundsRule struct{}

func (withinBoundsRule) Name() string { return "within_bounds" }

func (withinBoundsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, p := range view.ListPlacements() {
		container, ok := view.FindContainer(p.ContainerID)
		if !ok {
			continue
		}
		if !geometry.Within(container.Dimensions, p.Box()) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "within_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("item %s at %s exceeds container %s %s", p.ItemID, p.Position, container.ID, container.Dimensions),
				Entity:   domain.EntityPlacement,
				EntityID: p.ItemID,
			})
			continue
		}
		item, ok := view.FindItem(p.ItemID)
		if !ok {
			continue
		}
		if want, err := geometry.Orient(item.Dimensions, p.Orientation); err != nil || want != p.Extents {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "within_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("item %s extents %s do not match orientation %s", p.ItemID, p.Extents, p.Orientation),
				Entity:   domain.EntityPlacement,
				EntityID: p.ItemID,
			})
		}
	}
	return res, nil
}

// NewPlacementIntegrityRule returns the rule tying item status to placements:
// stored items have exactly one placement and placements reference known
// items and containers.
func NewPlacementIntegrityRule() domain.Rule {
	return placementIntegrityRule{}
}

type placementIntegrityRule struct{}

func (placementIntegrityRule) Name() string { return "placement_integrity" }

func (placementIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "placement_integrity",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   entity,
			EntityID: id,
		})
	}
	for _, p := range view.ListPlacements() {
		if _, ok := view.FindContainer(p.ContainerID); !ok {
			block(domain.EntityPlacement, p.ItemID, fmt.Sprintf("item %s placed in unknown container %s", p.ItemID, p.ContainerID))
		}
		item, ok := view.FindItem(p.ItemID)
		if !ok {
			block(domain.EntityPlacement, p.ItemID, fmt.Sprintf("placement references unknown item %s", p.ItemID))
			continue
		}
		if item.Status == domain.StatusRetrieved {
			block(domain.EntityItem, item.ID, fmt.Sprintf("retrieved item %s still placed in %s", item.ID, p.ContainerID))
		}
	}
	for _, item := range view.ListItems() {
		if item.Status != domain.StatusStored {
			continue
		}
		if _, ok := view.FindPlacement(item.ID); !ok {
			block(domain.EntityItem, item.ID, fmt.Sprintf("stored item %s has no placement", item.ID))
		}
	}
	return res, nil
}
