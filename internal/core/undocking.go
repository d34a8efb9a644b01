package core

import (
	"context"
	"fmt"
	"sort"

	"stowage/pkg/domain"
)

// WasteReturnRequest describes an undocking module loading waste for return.
type WasteReturnRequest struct {
	UndockingContainerID string
	UndockingDay         int
	// MaxWeight bounds the total shipping mass of the manifest.
	MaxWeight float64
}

// ManifestEntry is one item loaded for return.
type ManifestEntry struct {
	ItemID        string             `json:"item_id"`
	Name          string             `json:"name"`
	Reason        domain.WasteReason `json:"reason"`
	FromContainer string             `json:"from_container,omitempty"`
	Mass          float64            `json:"mass"`
	Volume        float64            `json:"volume"`
}

// ReturnManifest lists the waste loaded onto an undocking container.
type ReturnManifest struct {
	UndockingContainerID string          `json:"undocking_container_id"`
	UndockingDay         int             `json:"undocking_day"`
	Items                []ManifestEntry `json:"items"`
	TotalVolume          float64         `json:"total_volume"`
	TotalMass            float64         `json:"total_mass"`
	// Steps are the retrievals needed to pull each item out of storage.
	Steps []RetrievalStep `json:"steps,omitempty"`
	// Skipped lists waste left behind because it exceeded the weight budget.
	Skipped []string `json:"skipped,omitempty"`
}

// PlanWasteReturn loads waste onto the undocking container within the mass
// budget. Candidates are taken in reason order (expired first), then by
// identifier, skipping any item that would exceed the budget. Selected items
// leave storage and carry the manifest mark.
func (s *Service) PlanWasteReturn(ctx context.Context, req WasteReturnRequest) (ReturnManifest, error) {
	if req.UndockingContainerID == "" {
		return ReturnManifest{}, domain.NewError(domain.KindContainerNotFound, "", "", "undocking container required")
	}
	if req.MaxWeight <= 0 {
		return ReturnManifest{}, fmt.Errorf("waste return: max weight %.2f must be positive", req.MaxWeight)
	}
	var out ReturnManifest
	_, err := s.run(ctx, "plan_waste_return", func(tx Transaction, act *activity) error {
		out = ReturnManifest{UndockingContainerID: req.UndockingContainerID, UndockingDay: req.UndockingDay}
		view := tx.Snapshot()
		var waste []Item
		for _, item := range view.ListItems() {
			if item.Status.IsWaste() && item.Manifest == "" {
				waste = append(waste, item)
			}
		}
		sort.Slice(waste, func(i, j int) bool {
			if waste[i].WasteReason != waste[j].WasteReason {
				return waste[i].WasteReason < waste[j].WasteReason
			}
			return waste[i].ID < waste[j].ID
		})
		for _, item := range waste {
			mass := item.ShippingMass()
			if out.TotalMass+mass > req.MaxWeight {
				out.Skipped = append(out.Skipped, item.ID)
				continue
			}
			entry := ManifestEntry{ItemID: item.ID, Name: item.Name, Reason: item.WasteReason, Mass: mass, Volume: item.Volume()}
			if p, ok := tx.Snapshot().FindPlacement(item.ID); ok {
				for _, b := range domain.Blockers(tx.Snapshot().PlacementsIn(p.ContainerID), p) {
					out.Steps = append(out.Steps, RetrievalStep{Action: StepRemove, ItemID: b.ItemID, ContainerID: b.ContainerID, Position: b.Position})
				}
				out.Steps = append(out.Steps, RetrievalStep{Action: StepExtract, ItemID: item.ID, ItemName: item.Name, ContainerID: p.ContainerID, Position: p.Position})
				if _, err := tx.RemovePlacement(item.ID); err != nil {
					return err
				}
				entry.FromContainer = p.ContainerID
			}
			if _, err := tx.UpdateItem(item.ID, func(it *Item) error {
				it.Manifest = req.UndockingContainerID
				it.Flagged = false
				it.FlagReason = ""
				return nil
			}); err != nil {
				return err
			}
			out.Items = append(out.Items, entry)
			out.TotalMass += mass
			out.TotalVolume += entry.Volume
			act.record(tx, Event{Type: domain.EventWasteReturn, ItemID: item.ID, FromContainer: entry.FromContainer, ToContainer: req.UndockingContainerID, Reason: string(item.WasteReason)})
		}
		for i := range out.Steps {
			out.Steps[i].Step = i + 1
		}
		return nil
	})
	if err != nil {
		return ReturnManifest{}, err
	}
	return out, nil
}

// CompleteUndocking deletes every item loaded onto the undocking container
// and returns how many left the station.
func (s *Service) CompleteUndocking(ctx context.Context, undockingContainerID string) (int, error) {
	if undockingContainerID == "" {
		return 0, domain.NewError(domain.KindContainerNotFound, "", "", "undocking container required")
	}
	var removed int
	_, err := s.run(ctx, "complete_undocking", func(tx Transaction, act *activity) error {
		removed = 0
		for _, item := range tx.Snapshot().ListItems() {
			if item.Manifest != undockingContainerID {
				continue
			}
			if err := tx.DeleteItem(item.ID); err != nil {
				return err
			}
			removed++
			act.record(tx, Event{Type: domain.EventUndocking, ItemID: item.ID, FromContainer: undockingContainerID})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("undocking complete", "container", undockingContainerID, "items", removed)
	return removed, nil
}
