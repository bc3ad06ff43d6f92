package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nailbook/internal/models"
)

func TestFSM_Transitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		from    models.BookingStatus
		to      models.BookingStatus
		allowed bool
	}{
		{models.BookingPendingForm, models.BookingPendingPayment, true},
		{models.BookingPendingForm, models.BookingConfirmed, true},
		{models.BookingPendingForm, models.BookingCancelled, true},
		{models.BookingPendingPayment, models.BookingConfirmed, true},
		{models.BookingPendingPayment, models.BookingCancelled, true},
		{models.BookingPendingPayment, models.BookingPendingForm, false},
		{models.BookingConfirmed, models.BookingCancelled, false},
		{models.BookingConfirmed, models.BookingPendingPayment, false},
		{models.BookingCancelled, models.BookingPendingForm, false},
		{models.BookingCancelled, models.BookingConfirmed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, fsm.CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestFSM_GuardWrapsError(t *testing.T) {
	fsm := NewFSM()
	err := fsm.Guard(models.BookingConfirmed, models.BookingCancelled)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, fsm.Guard(models.BookingPendingForm, models.BookingConfirmed))
}

func TestFSM_UnknownState(t *testing.T) {
	fsm := NewFSM()
	assert.False(t, fsm.CanTransition("archived", models.BookingCancelled))
}
