package core

import (
	"context"
	"fmt"
	"strings"

	"stowage/pkg/domain"
)

// NewWasteSegregationRule warns when waste sits in a non-waste zone or when a
// stored item sits in a waste zone.
func NewWasteSegregationRule(wasteZones ...string) domain.Rule {
	zones := make(map[string]struct{}, len(wasteZones))
	for _, z := range wasteZones {
		zones[strings.ToLower(z)] = struct{}{}
	}
	return wasteSegregationRule{zones: zones}
}

type wasteSegregationRule struct {
	zones map[string]struct{}
}

func (wasteSegregationRule) Name() string { return "waste_segregation" }

func (r wasteSegregationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if len(r.zones) == 0 {
		return res, nil
	}
	for _, p := range view.ListPlacements() {
		item, ok := view.FindItem(p.ItemID)
		if !ok {
			continue
		}
		container, ok := view.FindContainer(p.ContainerID)
		if !ok {
			continue
		}
		_, inWaste := r.zones[strings.ToLower(container.Zone)]
		switch {
		case item.Status.IsWaste() && !inWaste:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "waste_segregation",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("waste item %s kept in %s zone container %s", item.ID, container.Zone, container.ID),
				Entity:   domain.EntityItem,
				EntityID: item.ID,
			})
		case item.Status == domain.StatusStored && inWaste:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "waste_segregation",
				Severity: domain.SeverityLog,
				Message:  fmt.Sprintf("stored item %s occupies waste container %s", item.ID, container.ID),
				Entity:   domain.EntityItem,
				EntityID: item.ID,
			})
		}
	}
	return res, nil
}
