package core

import "stowage/pkg/domain"

// RulesEngine aliases the domain engine so callers can stay inside core.
type RulesEngine = domain.RulesEngine

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in layout
// invariants plus the waste segregation warning for the given waste zones.
func NewDefaultRulesEngine(wasteZones ...string) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewNoOverlapRule())
	engine.Register(NewWithinBoundsRule())
	engine.Register(NewPlacementIntegrityRule())
	engine.Register(NewWasteSegregationRule(wasteZones...))
	return engine
}
