package core

import (
	"context"
	"errors"
	"sort"

	"stowage/pkg/domain"
)

// classify decides whether item has become waste on day. Expiry takes
// precedence over depletion.
func classify(item Item, day int) (ItemStatus, domain.WasteReason, bool) {
	switch {
	case item.ExpiredOn(day):
		return domain.StatusWaste, domain.WasteExpired, true
	case item.Depleted():
		return domain.StatusDepleted, domain.WasteDepleted, true
	default:
		return "", "", false
	}
}

// wasteSweep collects what one classifier pass did.
type wasteSweep struct {
	expired   []string
	depleted  []string
	relocated []Placement
	unplaced  []Unplaced
}

// sweepWaste classifies every stored item against day. Waste leaves its
// container and is re-placed in a waste zone; when no waste container can
// take it the item is flagged for manual handling. Previously flagged waste is
// retried on every pass. Retrieved items are out of storage and left alone
// until they are placed again.
func (s *Service) sweepWaste(tx Transaction, act *activity, day int) (wasteSweep, error) {
	var sweep wasteSweep
	items := tx.Snapshot().ListItems()
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	for _, item := range items {
		switch {
		case item.Status == domain.StatusStored:
			status, reason, ok := classify(item, day)
			if !ok {
				continue
			}
			if reason == domain.WasteExpired {
				sweep.expired = append(sweep.expired, item.ID)
			} else {
				sweep.depleted = append(sweep.depleted, item.ID)
			}
			p, err := tx.RemovePlacement(item.ID)
			if err != nil {
				return sweep, err
			}
			if _, err := tx.UpdateItem(item.ID, func(it *Item) error {
				it.Status = status
				it.WasteReason = reason
				return nil
			}); err != nil {
				return sweep, err
			}
			act.record(tx, Event{Type: domain.EventWaste, ItemID: item.ID, FromContainer: p.ContainerID, Reason: string(reason)})
		case item.Status.IsWaste() && item.Flagged && item.Manifest == "":
		default:
			continue
		}
		if err := s.relocateWaste(tx, act, item.ID, &sweep); err != nil {
			return sweep, err
		}
	}
	return sweep, nil
}

// relocateWaste moves a waste item into the first waste container with room.
func (s *Service) relocateWaste(tx Transaction, act *activity, itemID string, sweep *wasteSweep) error {
	view := tx.Snapshot()
	item, ok := view.FindItem(itemID)
	if !ok {
		return domain.NewError(domain.KindItemNotFound, itemID, "", "")
	}
	cand, err := s.locate(view, item, containersForZones(view, s.cfg.WasteZones))
	if err != nil {
		var infeasible *domain.InfeasibleError
		if !errors.As(err, &infeasible) {
			return err
		}
		reason := "no waste container has room"
		if len(infeasible.Attempts) == 0 {
			reason = "no waste container registered"
		}
		if _, err := tx.UpdateItem(itemID, func(it *Item) error {
			it.Flagged = true
			it.FlagReason = reason
			return nil
		}); err != nil {
			return err
		}
		sweep.unplaced = append(sweep.unplaced, Unplaced{ItemID: itemID, Reason: reason, Attempts: infeasible.Attempts})
		return nil
	}
	p, err := commit(tx, itemID, cand)
	if err != nil {
		return err
	}
	if item.Flagged {
		if _, err := tx.UpdateItem(itemID, func(it *Item) error {
			it.Flagged = false
			it.FlagReason = ""
			return nil
		}); err != nil {
			return err
		}
	}
	sweep.relocated = append(sweep.relocated, p)
	act.record(tx, Event{Type: domain.EventDisposal, ItemID: itemID, ToContainer: p.ContainerID, Reason: "moved to waste at " + describe(p)})
	return nil
}

// WasteItem describes an item that is, or is due to become, waste.
type WasteItem struct {
	ItemID      string             `json:"item_id"`
	Name        string             `json:"name"`
	Reason      domain.WasteReason `json:"reason"`
	ContainerID string             `json:"container_id,omitempty"`
	Position    *Vec               `json:"position,omitempty"`
	Flagged     bool               `json:"flagged,omitempty"`
	FlagReason  string             `json:"flag_reason,omitempty"`
}

// IdentifyWaste lists classified waste plus live items that would be
// classified as waste on the current day. Items already loaded for return are
// excluded.
func (s *Service) IdentifyWaste(ctx context.Context) ([]WasteItem, error) {
	var out []WasteItem
	err := s.read(ctx, "identify_waste", func(view TransactionView) error {
		for _, item := range view.ListItems() {
			if item.Manifest != "" {
				continue
			}
			reason := item.WasteReason
			if !item.Status.IsWaste() {
				var ok bool
				if _, reason, ok = classify(item, view.Day()); !ok {
					continue
				}
			}
			w := WasteItem{ItemID: item.ID, Name: item.Name, Reason: reason, Flagged: item.Flagged, FlagReason: item.FlagReason}
			if p, ok := view.FindPlacement(item.ID); ok {
				pos := p.Position
				w.ContainerID = p.ContainerID
				w.Position = &pos
			}
			out = append(out, w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, err
}
