// Package ledger computes deposit and balance bookkeeping for bookings.
// It is a pure value computation with no storage of its own.
package ledger

import "nailbook/internal/models"

// Balance is the amount still owed: invoice total minus deposit minus paid,
// floored at zero. A missing invoice means nothing is owed yet.
func Balance(inv *models.Invoice, deposit, paid float64) float64 {
	if inv == nil {
		return 0
	}
	balance := inv.Total - deposit - paid
	if balance < 0 {
		return 0
	}
	return balance
}

// IsSettled reports whether the booking is fully paid. Without an invoice a
// booking is never settled, regardless of deposit.
func IsSettled(inv *models.Invoice, deposit, paid float64) bool {
	return inv != nil && Balance(inv, deposit, paid) == 0
}

// DeriveStatus computes the payment status from the ledger. Refunded is
// sticky: it is only set explicitly and never derived away.
func DeriveStatus(inv *models.Invoice, deposit, paid float64, current models.PaymentStatus) models.PaymentStatus {
	if current == models.PaymentRefunded {
		return models.PaymentRefunded
	}
	if IsSettled(inv, deposit, paid) {
		return models.PaymentPaid
	}
	if deposit > 0 || paid > 0 {
		return models.PaymentPartial
	}
	return models.PaymentUnpaid
}
