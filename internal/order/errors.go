package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrItemNotFound = errors.New("order item not found")
)

// UnknownSweetError aborts a placement that references a sweet that does not
// exist; nothing is persisted.
type UnknownSweetError struct {
	SweetID string
}

func (e *UnknownSweetError) Error() string {
	return fmt.Sprintf("sweet %s not found", e.SweetID)
}

// InsufficientStockError names the first sweet whose stock cannot cover the
// requested quantity; the whole placement rolls back.
type InsufficientStockError struct {
	SweetID   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sweet %s: available=%d requested=%d",
		e.SweetID, e.Available, e.Requested)
}

// TransitionError reports a status change rejected by strict transition
// enforcement.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}
