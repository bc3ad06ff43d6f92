package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nailbook/internal/models"
)

func TestBalance(t *testing.T) {
	inv := &models.Invoice{Total: 100}

	assert.Equal(t, 100.0, Balance(inv, 0, 0))
	assert.Equal(t, 70.0, Balance(inv, 30, 0))
	assert.Equal(t, 0.0, Balance(inv, 30, 70))
	// Overpayment floors at zero.
	assert.Equal(t, 0.0, Balance(inv, 60, 70))
	// No invoice means no balance.
	assert.Equal(t, 0.0, Balance(nil, 30, 0))
}

func TestBalance_NeverNegative(t *testing.T) {
	totals := []float64{0, 1, 50, 100, 999.99}
	amounts := []float64{0, 0.01, 25, 100, 1000}
	for _, total := range totals {
		for _, deposit := range amounts {
			for _, paid := range amounts {
				b := Balance(&models.Invoice{Total: total}, deposit, paid)
				assert.GreaterOrEqual(t, b, 0.0,
					"total=%v deposit=%v paid=%v", total, deposit, paid)
			}
		}
	}
}

func TestIsSettled(t *testing.T) {
	inv := &models.Invoice{Total: 100}

	assert.False(t, IsSettled(inv, 30, 0))
	assert.True(t, IsSettled(inv, 30, 70))
	// No invoice: never settled, even with money on the table.
	assert.False(t, IsSettled(nil, 100, 100))
}

func TestDeriveStatus(t *testing.T) {
	inv := &models.Invoice{Total: 100}

	assert.Equal(t, models.PaymentUnpaid, DeriveStatus(inv, 0, 0, models.PaymentUnpaid))
	assert.Equal(t, models.PaymentPartial, DeriveStatus(inv, 30, 0, models.PaymentUnpaid))
	assert.Equal(t, models.PaymentPaid, DeriveStatus(inv, 30, 70, models.PaymentPartial))
	// Deposit without invoice stays partial, not paid.
	assert.Equal(t, models.PaymentPartial, DeriveStatus(nil, 30, 0, models.PaymentUnpaid))
	// Refunded is sticky.
	assert.Equal(t, models.PaymentRefunded, DeriveStatus(inv, 30, 70, models.PaymentRefunded))
}
