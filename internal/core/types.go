package core

import (
	"stowage/pkg/domain"
	"stowage/pkg/geometry"
)

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Item               = domain.Item
	ItemStatus         = domain.ItemStatus
	Container          = domain.Container
	Placement          = domain.Placement
	State              = domain.State
	Event              = domain.Event
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	Dimensions         = geometry.Dimensions
	Vec                = geometry.Vec
)

const (
	EntityItem      = domain.EntityItem
	EntityContainer = domain.EntityContainer
	EntityPlacement = domain.EntityPlacement
	EntityClock     = domain.EntityClock
)

const (
	StatusStored    = domain.StatusStored
	StatusRetrieved = domain.StatusRetrieved
	StatusWaste     = domain.StatusWaste
	StatusDepleted  = domain.StatusDepleted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
