package core

import (
	"context"
	"errors"
	"math"
	"strings"

	"stowage/pkg/domain"
)

// ErrEmptyQuery is returned when a search names neither an id nor a name.
var ErrEmptyQuery = errors.New("core: search needs an item id or name")

// SearchQuery selects items by identifier or case-insensitive name.
type SearchQuery struct {
	ItemID string
	Name   string
}

// SearchResult is the most accessible stored match and its retrieval steps.
type SearchResult struct {
	Item      Item            `json:"item"`
	Placement Placement       `json:"placement"`
	Steps     []RetrievalStep `json:"steps"`
	Cost      int             `json:"cost"`
	// Matches counts every stored item that matched the query.
	Matches int `json:"matches"`
}

// Search finds the stored item matching q that is cheapest to retrieve. Ties
// prefer the earliest expiry, then the identifier. Nothing is staged.
func (s *Service) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.ItemID == "" && q.Name == "" {
		return SearchResult{}, ErrEmptyQuery
	}
	var (
		best  SearchResult
		found bool
	)
	err := s.read(ctx, "search", func(view TransactionView) error {
		for _, item := range view.ListItems() {
			if item.Status != domain.StatusStored || !q.matches(item) {
				continue
			}
			plan, err := planRetrieval(view, item.ID)
			if err != nil {
				continue
			}
			best.Matches++
			p, _ := view.FindPlacement(item.ID)
			cand := SearchResult{Item: item, Placement: p, Steps: plan.Steps, Cost: plan.Cost}
			if !found || preferResult(cand, best) {
				matches := best.Matches
				best = cand
				best.Matches = matches
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return SearchResult{}, err
	}
	if !found {
		return SearchResult{}, domain.NewError(domain.KindItemNotFound, q.ItemID, "", q.describe())
	}
	return best, nil
}

func (q SearchQuery) matches(item Item) bool {
	if q.ItemID != "" && item.ID != q.ItemID {
		return false
	}
	return q.Name == "" || strings.EqualFold(item.Name, q.Name)
}

func (q SearchQuery) describe() string {
	if q.Name == "" {
		return "no stored item"
	}
	return "no stored item named " + q.Name
}

func preferResult(a, b SearchResult) bool {
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	if ea, eb := expiryKey(a.Item), expiryKey(b.Item); ea != eb {
		return ea < eb
	}
	return a.Item.ID < b.Item.ID
}

func expiryKey(item Item) int {
	if item.ExpiryDay == nil {
		return math.MaxInt
	}
	return *item.ExpiryDay
}
