// Package models defines the scheduling domain types shared across the service.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DateFormat is the canonical calendar-day format used in storage and APIs.
	DateFormat = "2006-01-02"
	// TimeFormat is the canonical grid token format.
	TimeFormat = "15:04"
)

// SlotStatus represents the state of a single bookable slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotPending   SlotStatus = "pending"
	SlotConfirmed SlotStatus = "confirmed"
	SlotBlocked   SlotStatus = "blocked"
)

// SlotType distinguishes regular slots from surcharge (off-hours) slots.
type SlotType string

const (
	SlotRegular   SlotType = "regular"
	SlotSurcharge SlotType = "surcharge"
)

// Slot is the atomic unit of bookable time: one technician, one date, one
// grid token. No two slots share (technician, date, time).
type Slot struct {
	ID           int64      `json:"id"`
	TechnicianID int64      `json:"technician_id"`
	Date         string     `json:"date"` // YYYY-MM-DD
	Time         string     `json:"time"` // HH:MM grid token
	Status       SlotStatus `json:"status"`
	Type         SlotType   `json:"type"`
	Notes        string     `json:"notes,omitempty"`
	Hidden       bool       `json:"hidden,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BookingStatus is the booking lifecycle state.
type BookingStatus string

const (
	BookingPendingForm    BookingStatus = "pending_form"
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCancelled      BookingStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingConfirmed || s == BookingCancelled
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPendingForm, BookingPendingPayment, BookingConfirmed, BookingCancelled:
		return true
	}
	return false
}

// SlotStatusFor returns the slot status that mirrors a booking status while
// the booking holds the slot.
func SlotStatusFor(s BookingStatus) SlotStatus {
	if s == BookingConfirmed {
		return SlotConfirmed
	}
	return SlotPending
}

// PaymentStatus tracks how much of the booking has been paid.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPartial, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// ServiceType enumerates bookable services. Each maps to a required number
// of contiguous slots.
type ServiceType string

const (
	ServiceManicure   ServiceType = "manicure"
	ServicePedicure   ServiceType = "pedicure"
	ServiceGelSet     ServiceType = "gel_set"
	ServiceManiPedi   ServiceType = "mani_pedi"
	ServiceSpaPackage ServiceType = "spa_package"
)

var serviceSlotCounts = map[ServiceType]int{
	ServiceManicure:   1,
	ServicePedicure:   1,
	ServiceGelSet:     2,
	ServiceManiPedi:   2,
	ServiceSpaPackage: 3,
}

// SlotCount returns the number of contiguous slots the service occupies.
// Unknown service types report 0.
func (s ServiceType) SlotCount() int {
	return serviceSlotCounts[s]
}

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	_, ok := serviceSlotCounts[s]
	return ok
}

// IsComposite reports whether the service is a compound of two independent
// services that may be split across technicians.
func (s ServiceType) IsComposite() bool {
	return s == ServiceManiPedi
}

// SplitComponents returns the single-slot services a composite booking
// splits into.
func (s ServiceType) SplitComponents() (ServiceType, ServiceType, bool) {
	if s == ServiceManiPedi {
		return ServiceManicure, ServicePedicure, true
	}
	return "", "", false
}

// CustomerPending is the sentinel customer id used until the intake form
// resolves the customer's identity.
const CustomerPending = "pending"

// Booking is a customer reservation spanning one or more contiguous slots.
type Booking struct {
	ID              int64         `json:"id"`
	BookingID       string        `json:"booking_id"`
	SlotID          int64         `json:"slot_id"`
	LinkedSlotIDs   []int64       `json:"linked_slot_ids,omitempty"`
	TechnicianID    int64         `json:"technician_id"`
	ServiceType     ServiceType   `json:"service_type"`
	ServiceLocation string        `json:"service_location,omitempty"`
	Status          BookingStatus `json:"status"`
	CustomerID      string        `json:"customer_id"`
	DepositAmount   float64       `json:"deposit_amount"`
	PaidAmount      float64       `json:"paid_amount"`
	TipAmount       float64       `json:"tip_amount"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Invoice         *Invoice      `json:"invoice,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SlotIDs returns the primary slot followed by linked slots, in order.
func (b *Booking) SlotIDs() []int64 {
	ids := make([]int64, 0, 1+len(b.LinkedSlotIDs))
	ids = append(ids, b.SlotID)
	ids = append(ids, b.LinkedSlotIDs...)
	return ids
}

// HasSlot reports whether id is part of the booking's slot set.
func (b *Booking) HasSlot(id int64) bool {
	if b.SlotID == id {
		return true
	}
	for _, linked := range b.LinkedSlotIDs {
		if linked == id {
			return true
		}
	}
	return false
}

// NewBookingRef generates a human-readable booking reference for a date,
// e.g. "NB-20260829-1a2b3c4d".
func NewBookingRef(date string) string {
	compact := strings.ReplaceAll(date, "-", "")
	return fmt.Sprintf("NB-%s-%s", compact, uuid.NewString()[:8])
}

// BlockedDate is an inclusive [StartDate, EndDate] range during which no
// slot may be created, confirmed, or treated as available.
type BlockedDate struct {
	ID        int64     `json:"id"`
	StartDate string    `json:"start_date"` // YYYY-MM-DD
	EndDate   string    `json:"end_date"`   // YYYY-MM-DD
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether date falls within the range. ISO dates compare
// correctly as strings.
func (b BlockedDate) Contains(date string) bool {
	return date >= b.StartDate && date <= b.EndDate
}
