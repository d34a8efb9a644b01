package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stowage/pkg/domain"
)

// ErrInvalidDays is returned when AdvanceDay is asked to move backwards.
var ErrInvalidDays = errors.New("core: day count must not be negative")

// DayEvent summarises one simulated day.
type DayEvent struct {
	Day           int         `json:"day"`
	ItemsUsed     []string    `json:"items_used,omitempty"`
	ItemsExpired  []string    `json:"items_expired,omitempty"`
	ItemsDepleted []string    `json:"items_depleted,omitempty"`
	Relocated     []Placement `json:"relocated,omitempty"`
	Unplaced      []Unplaced  `json:"unplaced,omitempty"`
}

// AdvanceOptions tunes AdvanceDay.
type AdvanceOptions struct {
	// UsePerDay lists items consumed once on every simulated day.
	UsePerDay []string
}

// AdvanceDay moves the simulation clock forward n days. Each day consumes
// daily usage, classifies waste against the new day and relocates it. The
// whole run commits atomically. The first advance captures the reset baseline
// when none was marked. Advancing zero days changes nothing.
func (s *Service) AdvanceDay(ctx context.Context, n int, opts AdvanceOptions) ([]DayEvent, error) {
	if n < 0 {
		return nil, fmt.Errorf("advance %d: %w", n, ErrInvalidDays)
	}
	if n == 0 {
		return []DayEvent{}, nil
	}
	var days []DayEvent
	_, err := s.run(ctx, "advance_day", func(tx Transaction, act *activity) error {
		days = days[:0]
		if !tx.Snapshot().HasBaseline() {
			tx.MarkBaseline()
		}
		for i := 0; i < n; i++ {
			ev, err := s.tick(tx, act, opts)
			if err != nil {
				return err
			}
			days = append(days, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		s.logger.Info("day advanced", "day", d.Day, "used", len(d.ItemsUsed), "expired", len(d.ItemsExpired), "depleted", len(d.ItemsDepleted), "unplaced", len(d.Unplaced))
		for _, miss := range d.Unplaced {
			s.observeInfeasible(ctx, miss.ItemID)
		}
	}
	return days, nil
}

func (s *Service) tick(tx Transaction, act *activity, opts AdvanceOptions) (DayEvent, error) {
	newDay := tx.Snapshot().Day() + 1
	ev := DayEvent{Day: newDay}
	used, err := consume(tx, opts.UsePerDay)
	if err != nil {
		return DayEvent{}, err
	}
	ev.ItemsUsed = used
	if err := tx.SetDay(newDay); err != nil {
		return DayEvent{}, err
	}
	sweep, err := s.sweepWaste(tx, act, newDay)
	if err != nil {
		return DayEvent{}, err
	}
	ev.ItemsExpired = sweep.expired
	ev.ItemsDepleted = sweep.depleted
	ev.Relocated = sweep.relocated
	ev.Unplaced = sweep.unplaced
	payload, err := domain.NewPayloadFromValue(ev)
	if err != nil {
		return DayEvent{}, err
	}
	act.record(tx, Event{Type: domain.EventDayBoundary, Reason: fmt.Sprintf("day %d", newDay), Payload: payload})
	return ev, nil
}

// consume applies daily usage and the explicit per-day list. Unlimited items
// are reported as used without losing uses.
func consume(tx Transaction, perDay []string) ([]string, error) {
	uses := make(map[string]int)
	for _, item := range tx.Snapshot().ListItems() {
		if item.DailyUsage > 0 && item.Status == domain.StatusStored {
			uses[item.ID] += item.DailyUsage
		}
	}
	for _, id := range perDay {
		item, ok := tx.Snapshot().FindItem(id)
		if !ok {
			return nil, domain.NewError(domain.KindItemNotFound, id, "", "scheduled for daily use")
		}
		if item.Status == domain.StatusStored || item.Status == domain.StatusRetrieved {
			uses[id]++
		}
	}
	used := make([]string, 0, len(uses))
	for id := range uses {
		used = append(used, id)
	}
	sort.Strings(used)
	for _, id := range used {
		n := uses[id]
		if _, err := tx.UpdateItem(id, func(it *Item) error {
			if it.Limited() {
				it.RemainingUses = max(it.RemainingUses-n, 0)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return used, nil
}

// ResetResult reports a simulation rollback.
type ResetResult struct {
	Day   int             `json:"day"`
	Steps []RearrangeStep `json:"steps,omitempty"`
}

// ResetSimulation restores the baseline captured when the simulation started.
// Without a baseline it does nothing. Staged retrieval plans are discarded.
func (s *Service) ResetSimulation(ctx context.Context) (ResetResult, error) {
	var out ResetResult
	_, err := s.run(ctx, "reset_simulation", func(tx Transaction, act *activity) error {
		view := tx.Snapshot()
		if !view.HasBaseline() {
			out = ResetResult{Day: view.Day()}
			return nil
		}
		before := view.ListPlacements()
		if err := tx.RestoreBaseline(); err != nil {
			return err
		}
		after := tx.Snapshot()
		out = ResetResult{Day: after.Day(), Steps: DiffArrangements(before, after.ListPlacements())}
		payload, err := domain.NewPayloadFromValue(out)
		if err != nil {
			return err
		}
		act.record(tx, Event{Type: domain.EventReset, Reason: fmt.Sprintf("restored day %d", out.Day), Payload: payload})
		return nil
	})
	if err != nil {
		return ResetResult{}, err
	}
	s.mu.Lock()
	clear(s.plans)
	s.mu.Unlock()
	return out, nil
}
