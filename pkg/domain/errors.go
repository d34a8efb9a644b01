package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures so callers can branch with errors.Is.
type ErrorKind string

// Error kinds surfaced by the registry and engine.
const (
	KindOutOfBounds       ErrorKind = "out_of_bounds"
	KindOverlap           ErrorKind = "overlap"
	KindContainerNotFound ErrorKind = "container_not_found"
	KindItemNotFound      ErrorKind = "item_not_found"
	KindInfeasible        ErrorKind = "infeasible"
	KindAlreadyRetrieved  ErrorKind = "already_retrieved"
	KindInvalidDimensions ErrorKind = "invalid_dimensions"
	KindDuplicate         ErrorKind = "duplicate"
	KindStalePlan         ErrorKind = "stale_plan"
	KindPlanNotFound      ErrorKind = "plan_not_found"
)

// Error carries the failing kind with optional context.
type Error struct {
	Kind        ErrorKind
	ItemID      string
	ContainerID string
	Reason      string
}

// Sentinel values for errors.Is comparisons. They match any *Error of the
// same kind regardless of context fields.
var (
	ErrOutOfBounds       = &Error{Kind: KindOutOfBounds}
	ErrOverlap           = &Error{Kind: KindOverlap}
	ErrContainerNotFound = &Error{Kind: KindContainerNotFound}
	ErrItemNotFound      = &Error{Kind: KindItemNotFound}
	ErrInfeasible        = &Error{Kind: KindInfeasible}
	ErrAlreadyRetrieved  = &Error{Kind: KindAlreadyRetrieved}
	ErrInvalidDimensions = &Error{Kind: KindInvalidDimensions}
	ErrDuplicate         = &Error{Kind: KindDuplicate}
	ErrStalePlan         = &Error{Kind: KindStalePlan}
	ErrPlanNotFound      = &Error{Kind: KindPlanNotFound}
)

// NewError builds a contextual error of the given kind.
func NewError(kind ErrorKind, itemID, containerID, reason string) *Error {
	return &Error{Kind: kind, ItemID: itemID, ContainerID: containerID, Reason: reason}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.ItemID != "" {
		fmt.Fprintf(&b, " item=%s", e.ItemID)
	}
	if e.ContainerID != "" {
		fmt.Fprintf(&b, " container=%s", e.ContainerID)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is matches another *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the error kind from err, or the empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var inf *InfeasibleError
	if errors.As(err, &inf) {
		return KindInfeasible
	}
	return ""
}

// Attempt records why a candidate container could not take an item.
type Attempt struct {
	ContainerID string `json:"container_id"`
	Zone        string `json:"zone"`
	Reason      string `json:"reason"`
}

// InfeasibleError reports that no container could accommodate an item.
type InfeasibleError struct {
	ItemID   string
	Attempts []Attempt
}

func (e *InfeasibleError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("infeasible item=%s: no candidate containers", e.ItemID)
	}
	return fmt.Sprintf("infeasible item=%s: %d containers tried", e.ItemID, len(e.Attempts))
}

// Is matches ErrInfeasible.
func (e *InfeasibleError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindInfeasible
}

// ErrNotFound indicates a missing entity by type and identifier.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is maps missing items and containers onto their error kinds.
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	switch e.Entity {
	case EntityItem, EntityPlacement:
		return t.Kind == KindItemNotFound
	case EntityContainer:
		return t.Kind == KindContainerNotFound
	}
	return false
}
