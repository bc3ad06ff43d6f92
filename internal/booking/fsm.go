// Package booking implements the booking lifecycle state machine and the
// rescheduling engine on top of the slot store.
package booking

import (
	"errors"
	"fmt"

	"nailbook/internal/models"
)

var (
	// ErrInvalidState is returned on an illegal lifecycle transition.
	ErrInvalidState = errors.New("illegal booking state transition")
	// ErrValidation is returned on missing or malformed input.
	ErrValidation = errors.New("validation failed")
)

// FSM manages allowed booking status transitions.
type FSM struct {
	transitions map[models.BookingStatus][]models.BookingStatus
}

// NewFSM creates the lifecycle state machine. Confirmed and cancelled are
// terminal.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.BookingStatus][]models.BookingStatus{
			models.BookingPendingForm:    {models.BookingPendingPayment, models.BookingConfirmed, models.BookingCancelled},
			models.BookingPendingPayment: {models.BookingConfirmed, models.BookingCancelled},
			models.BookingConfirmed:      {},
			models.BookingCancelled:      {},
		},
	}
}

// CanTransition checks if the transition is allowed.
func (f *FSM) CanTransition(from, to models.BookingStatus) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Guard returns ErrInvalidState unless the transition is allowed.
func (f *FSM) Guard(from, to models.BookingStatus) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidState)
	}
	return nil
}
