package domain

import "errors"

var (
	// ErrOperationNotFound is returned when no record exists for an operation id
	ErrOperationNotFound = errors.New("operation not found")

	// ErrCoordinatorStopped is returned for requests made after the coordinator stopped
	ErrCoordinatorStopped = errors.New("session coordinator stopped")

	// ErrInvalidEvent is returned for engine events that cannot be applied
	ErrInvalidEvent = errors.New("invalid engine event")

	// ErrReservedNotificationID is returned when an operation maps onto the foreground slot
	ErrReservedNotificationID = errors.New("notification id is reserved for the foreground service")
)
