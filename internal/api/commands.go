package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"nailbook/internal/models"
)

// Command is one member of the closed set of booking mutations accepted by
// PATCH /api/bookings/{id}. Each action decodes into its own payload type
// so unknown fields and missing fields fail up front, not halfway through a
// handler.
type Command interface {
	action() string
}

// ConfirmCommand confirms the booking and optionally records a deposit.
type ConfirmCommand struct {
	Deposit       *float64 `json:"deposit,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
}

// CancelCommand cancels the booking. ReleaseSlots defaults to true.
type CancelCommand struct {
	ReleaseSlots *bool `json:"release_slots,omitempty"`
}

// SaveInvoiceCommand attaches a priced invoice.
type SaveInvoiceCommand struct {
	Invoice *models.Invoice `json:"invoice"`
}

// UpdatePaymentCommand records payment amounts and an optional explicit
// status.
type UpdatePaymentCommand struct {
	Status        models.PaymentStatus `json:"status,omitempty"`
	Paid          *float64             `json:"paid,omitempty"`
	Tip           *float64             `json:"tip,omitempty"`
	PaymentMethod string               `json:"payment_method,omitempty"`
}

// UpdateDepositCommand sets the deposit amount.
type UpdateDepositCommand struct {
	Deposit float64 `json:"deposit"`
}

// RescheduleCommand moves the booking onto a new slot run.
type RescheduleCommand struct {
	SlotIDs []int64 `json:"slot_ids"`
}

// SplitRescheduleCommand splits a composite booking across two slots.
type SplitRescheduleCommand struct {
	Slot1ID int64 `json:"slot1_id"`
	Slot2ID int64 `json:"slot2_id"`
}

// UpdateServiceTypeCommand corrects the service type on the booking row.
type UpdateServiceTypeCommand struct {
	ServiceType models.ServiceType `json:"service_type"`
}

// UpdateNailTechCommand corrects the technician on the booking row.
type UpdateNailTechCommand struct {
	TechnicianID int64 `json:"technician_id"`
}

// SetStatusCommand moves the booking to an explicit lifecycle status.
type SetStatusCommand struct {
	Status models.BookingStatus `json:"status"`
}

func (ConfirmCommand) action() string           { return "confirm" }
func (CancelCommand) action() string            { return "cancel" }
func (SaveInvoiceCommand) action() string       { return "save_invoice" }
func (UpdatePaymentCommand) action() string     { return "update_payment" }
func (UpdateDepositCommand) action() string     { return "update_deposit" }
func (RescheduleCommand) action() string        { return "reschedule" }
func (SplitRescheduleCommand) action() string   { return "split_reschedule" }
func (UpdateServiceTypeCommand) action() string { return "update_service_type" }
func (UpdateNailTechCommand) action() string    { return "update_nail_tech" }
func (SetStatusCommand) action() string         { return "set_status" }

// patchEnvelope carries the action tag plus the raw payload for the second
// decode pass.
type patchEnvelope struct {
	Action string `json:"action"`
}

// decodeCommand turns a PATCH body into its typed command. The switch is
// exhaustive over the accepted actions; anything else is rejected.
func decodeCommand(body []byte) (Command, error) {
	var env patchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}

	var cmd Command
	switch env.Action {
	case "confirm":
		cmd = &ConfirmCommand{}
	case "cancel":
		cmd = &CancelCommand{}
	case "save_invoice":
		cmd = &SaveInvoiceCommand{}
	case "update_payment":
		cmd = &UpdatePaymentCommand{}
	case "update_deposit":
		cmd = &UpdateDepositCommand{}
	case "reschedule":
		cmd = &RescheduleCommand{}
	case "split_reschedule":
		cmd = &SplitRescheduleCommand{}
	case "update_service_type":
		cmd = &UpdateServiceTypeCommand{}
	case "update_nail_tech":
		cmd = &UpdateNailTechCommand{}
	case "set_status":
		cmd = &SetStatusCommand{}
	case "":
		return nil, fmt.Errorf("action is required")
	default:
		return nil, fmt.Errorf("unknown action %q", env.Action)
	}

	dec := json.NewDecoder(bytes.NewReader(stripAction(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("invalid %s payload", env.Action)
	}
	return cmd, nil
}

// stripAction removes the envelope tag so payload decoding can reject
// unknown fields without special-casing "action".
func stripAction(body []byte) []byte {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return body
	}
	delete(raw, "action")
	out, err := json.Marshal(raw)
	if err != nil {
		return body
	}
	return out
}
