package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"stowage/pkg/domain"
)

// StepAction names a retrieval step.
type StepAction string

// Retrieval step actions.
const (
	StepRemove  StepAction = "remove"
	StepExtract StepAction = "extract"
)

// RetrievalStep is one action in a retrieval plan.
type RetrievalStep struct {
	Step        int        `json:"step"`
	Action      StepAction `json:"action"`
	ItemID      string     `json:"item_id"`
	ItemName    string     `json:"item_name"`
	ContainerID string     `json:"container_id"`
	Position    Vec        `json:"position"`
}

// RetrievalPlan is a staged, unconfirmed retrieval. Nothing is mutated until
// the plan is confirmed.
type RetrievalPlan struct {
	ID          string          `json:"id"`
	TargetID    string          `json:"target_id"`
	ContainerID string          `json:"container_id"`
	Steps       []RetrievalStep `json:"steps"`
	// Cost is the number of items that must be moved out of the way.
	Cost      int       `json:"cost"`
	Day       int       `json:"day"`
	CreatedAt time.Time `json:"created_at"`

	fingerprint string
}

// Blockers returns the identifiers of the items removed before extraction.
func (p RetrievalPlan) Blockers() []string {
	var ids []string
	for _, step := range p.Steps {
		if step.Action == StepRemove {
			ids = append(ids, step.ItemID)
		}
	}
	return ids
}

// PlaceBackPolicy controls what happens to blockers on confirmation.
type PlaceBackPolicy int

// Place-back policies. The default follows the engine configuration.
const (
	PlaceBackDefault PlaceBackPolicy = iota
	PlaceBackAlways
	PlaceBackNever
)

// RetrievalOptions tunes ConfirmRetrieval.
type RetrievalOptions struct {
	PlaceBack PlaceBackPolicy
}

// Displaced is a blocker that was taken out and not put back.
type Displaced struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// RetrievalOutcome reports a confirmed retrieval.
type RetrievalOutcome struct {
	Plan      RetrievalPlan `json:"plan"`
	Item      Item          `json:"item"`
	Restowed  []Placement   `json:"restowed,omitempty"`
	Displaced []Displaced   `json:"displaced,omitempty"`
}

// planRetrieval computes the removal sequence for itemID against view.
func planRetrieval(view TransactionView, itemID string) (RetrievalPlan, error) {
	item, ok := view.FindItem(itemID)
	if !ok {
		return RetrievalPlan{}, domain.NewError(domain.KindItemNotFound, itemID, "", "")
	}
	if item.Status == domain.StatusRetrieved {
		return RetrievalPlan{}, domain.NewError(domain.KindAlreadyRetrieved, itemID, "", "")
	}
	if item.Status != domain.StatusStored {
		return RetrievalPlan{}, domain.NewError(domain.KindItemNotFound, itemID, "", "item is "+string(item.Status))
	}
	target, ok := view.FindPlacement(itemID)
	if !ok {
		return RetrievalPlan{}, domain.NewError(domain.KindItemNotFound, itemID, "", "item has no placement")
	}
	blockers := domain.Blockers(view.PlacementsIn(target.ContainerID), target)
	plan := RetrievalPlan{
		TargetID:    itemID,
		ContainerID: target.ContainerID,
		Cost:        len(blockers),
		Day:         view.Day(),
	}
	var fp strings.Builder
	fmt.Fprintf(&fp, "%s@%s", itemID, target.Position)
	for _, b := range blockers {
		name := ""
		if blocker, ok := view.FindItem(b.ItemID); ok {
			name = blocker.Name
		}
		plan.Steps = append(plan.Steps, RetrievalStep{
			Step:        len(plan.Steps) + 1,
			Action:      StepRemove,
			ItemID:      b.ItemID,
			ItemName:    name,
			ContainerID: b.ContainerID,
			Position:    b.Position,
		})
		fmt.Fprintf(&fp, "|%s@%s", b.ItemID, b.Position)
	}
	plan.Steps = append(plan.Steps, RetrievalStep{
		Step:        len(plan.Steps) + 1,
		Action:      StepExtract,
		ItemID:      itemID,
		ItemName:    item.Name,
		ContainerID: target.ContainerID,
		Position:    target.Position,
	})
	plan.fingerprint = fp.String()
	return plan, nil
}

// read wraps a read-only operation with tracing and metrics.
func (s *Service) read(ctx context.Context, op string, fn func(TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := s.store.View(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	return err
}

// Retrieve stages a retrieval plan for itemID. The registry is untouched
// until ConfirmRetrieval.
func (s *Service) Retrieve(ctx context.Context, itemID string) (RetrievalPlan, error) {
	var plan RetrievalPlan
	err := s.read(ctx, "retrieve", func(view TransactionView) error {
		var err error
		plan, err = planRetrieval(view, itemID)
		return err
	})
	if err != nil {
		return RetrievalPlan{}, err
	}
	plan.ID = uuid.NewString()
	plan.CreatedAt = s.clock.Now()
	s.mu.Lock()
	s.plans[plan.ID] = plan
	s.mu.Unlock()
	s.logger.Info("retrieval staged", "plan", plan.ID, "item", itemID, "cost", plan.Cost)
	s.publish(ctx, []Event{s.event(ctx, plan.Day, Event{
		Type:          domain.EventRetrievalPlanned,
		ItemID:        itemID,
		FromContainer: plan.ContainerID,
		Reason:        fmt.Sprintf("cost %d", plan.Cost),
	})})
	return plan, nil
}

// PendingRetrievals lists staged plans, oldest first.
func (s *Service) PendingRetrievals() []RetrievalPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RetrievalPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CancelRetrieval drops a staged plan.
func (s *Service) CancelRetrieval(ctx context.Context, planID string) error {
	s.mu.Lock()
	plan, ok := s.plans[planID]
	delete(s.plans, planID)
	s.mu.Unlock()
	if !ok {
		return domain.NewError(domain.KindPlanNotFound, "", "", planID)
	}
	s.publish(ctx, []Event{s.event(ctx, plan.Day, Event{
		Type:          domain.EventRetrievalCancelled,
		ItemID:        plan.TargetID,
		FromContainer: plan.ContainerID,
	})})
	return nil
}

func (s *Service) placeBack(opts RetrievalOptions) bool {
	switch opts.PlaceBack {
	case PlaceBackAlways:
		return true
	case PlaceBackNever:
		return false
	default:
		return s.cfg.PlaceBack
	}
}

// ConfirmRetrieval executes a staged plan: blockers and the target leave the
// container, the target becomes retrieved and spends one use. Blockers are put
// back through the placement engine unless the options say otherwise.
func (s *Service) ConfirmRetrieval(ctx context.Context, planID string, opts RetrievalOptions) (RetrievalOutcome, error) {
	s.mu.Lock()
	plan, ok := s.plans[planID]
	s.mu.Unlock()
	if !ok {
		return RetrievalOutcome{}, domain.NewError(domain.KindPlanNotFound, "", "", planID)
	}
	placeBack := s.placeBack(opts)
	var out RetrievalOutcome
	_, err := s.run(ctx, "confirm_retrieval", func(tx Transaction, act *activity) error {
		out = RetrievalOutcome{Plan: plan}
		view := tx.Snapshot()
		current, err := planRetrieval(view, plan.TargetID)
		if err != nil || current.fingerprint != plan.fingerprint {
			reason := "registry changed since plan"
			if err != nil {
				reason = err.Error()
			}
			return domain.NewError(domain.KindStalePlan, plan.TargetID, plan.ContainerID, reason)
		}
		origin := make(map[string]Placement)
		for _, id := range plan.Blockers() {
			p, err := tx.RemovePlacement(id)
			if err != nil {
				return err
			}
			origin[id] = p
		}
		if _, err := tx.RemovePlacement(plan.TargetID); err != nil {
			return err
		}
		out.Item, err = tx.UpdateItem(plan.TargetID, func(item *Item) error {
			item.Status = domain.StatusRetrieved
			if item.Limited() && item.RemainingUses > 0 {
				item.RemainingUses--
			}
			return nil
		})
		if err != nil {
			return err
		}
		act.record(tx, Event{Type: domain.EventRetrieval, ItemID: plan.TargetID, FromContainer: plan.ContainerID, Reason: fmt.Sprintf("cost %d", plan.Cost)})

		blockers := plan.Blockers()
		for i := len(blockers) - 1; i >= 0; i-- {
			id := blockers[i]
			from := origin[id]
			if placeBack {
				p, err := s.restow(tx, id, from)
				if err == nil {
					out.Restowed = append(out.Restowed, p)
					act.record(tx, Event{Type: domain.EventRestow, ItemID: id, FromContainer: from.ContainerID, ToContainer: p.ContainerID, Reason: "restowed at " + describe(p)})
					continue
				}
				if !errors.Is(err, domain.ErrInfeasible) {
					return err
				}
				out.Displaced = append(out.Displaced, Displaced{ItemID: id, Reason: err.Error()})
			} else {
				out.Displaced = append(out.Displaced, Displaced{ItemID: id, Reason: "awaiting re-placement"})
			}
			if _, err := tx.UpdateItem(id, func(item *Item) error {
				item.Status = domain.StatusRetrieved
				return nil
			}); err != nil {
				return err
			}
			act.record(tx, Event{Type: domain.EventRetrieval, ItemID: id, FromContainer: from.ContainerID, Reason: "removed to reach " + plan.TargetID})
		}
		return nil
	})
	if errors.Is(err, domain.ErrStalePlan) {
		s.dropPlan(planID)
	}
	if err != nil {
		return RetrievalOutcome{}, err
	}
	s.dropPlan(planID)
	sort.Slice(out.Displaced, func(i, j int) bool { return out.Displaced[i].ItemID < out.Displaced[j].ItemID })
	return out, nil
}

func (s *Service) dropPlan(id string) {
	s.mu.Lock()
	delete(s.plans, id)
	s.mu.Unlock()
}

// restow puts a removed blocker back: its original container first, then the
// rest of that zone, then the item's preferred zone.
func (s *Service) restow(tx Transaction, itemID string, from Placement) (Placement, error) {
	view := tx.Snapshot()
	item, ok := view.FindItem(itemID)
	if !ok {
		return Placement{}, domain.NewError(domain.KindItemNotFound, itemID, "", "")
	}
	var containers []Container
	if c, ok := view.FindContainer(from.ContainerID); ok {
		containers = append(containers, c)
		for _, other := range containersForZones(view, []string{c.Zone, item.PreferredZone}) {
			if other.ID != c.ID {
				containers = append(containers, other)
			}
		}
	}
	cand, err := s.locate(view, item, containers)
	if err != nil {
		return Placement{}, err
	}
	return commit(tx, itemID, cand)
}

// event stamps an event emitted outside a transaction.
func (s *Service) event(ctx context.Context, day int, e Event) Event {
	e.ID = newEventID()
	e.UserID = UserIDFromContext(ctx)
	e.Timestamp = s.clock.Now()
	e.Day = day
	return e
}
