package model

import "errors"

var (
	ErrNotFound   = errors.New("requested record not found")
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientInventory means fewer units were available than requested.
	// It is never fatal: callers record it as a shortfall on the line.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrInvalidLocation means a location lookup failed (missing or deleted node).
	ErrInvalidLocation = errors.New("invalid location")

	// ErrDuplicateSweep is returned when a second non-cancelled sweep is created
	// for the same store and date.
	ErrDuplicateSweep = errors.New("sweep already exists for store and date")

	// ErrReservationConflict is returned when a concurrent writer changed a lot
	// between read and reserve. The allocation attempt can be retried.
	ErrReservationConflict = errors.New("reservation conflict")

	ErrDuplicateLocationCode = errors.New("duplicate slot location code")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrAlreadyDispatched     = errors.New("order already dispatched")

	// ErrDuplicateReceipt is returned when a lot with the same receipt key was
	// already received.
	ErrDuplicateReceipt = errors.New("lot already received")
)
