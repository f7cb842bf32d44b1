package domain

import "context"

// EngineListener receives engine callbacks. Callbacks may arrive on any goroutine.
type EngineListener interface {
	OnEvent(ev Event)
}

// Engine is the external download engine the coordinator reconciles with
type Engine interface {
	// AddListener registers l; adding the same listener twice is a no-op
	AddListener(l EngineListener)

	// RemoveListener unregisters l; no-op if absent
	RemoveListener(l EngineListener)

	// OperationsWithStatus returns the engine's live operations in any of statuses
	OperationsWithStatus(ctx context.Context, statuses []OperationStatus) ([]*Operation, error)
}

// ActivitySource answers the aggregate "is anything active" question
type ActivitySource interface {
	ActiveOperations(ctx context.Context) ([]*Operation, error)
}
