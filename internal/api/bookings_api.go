package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"nailbook/internal/booking"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
)

// BookingResponse wraps a booking with its ledger warning, when an update
// left the row describing something its slots do not match.
type BookingResponse struct {
	Booking *models.Booking `json:"booking"`
	Warning string          `json:"warning,omitempty"`
}

// SplitResponse is the result of a split_reschedule command.
type SplitResponse struct {
	Children []*models.Booking `json:"children"`
}

// handleBookings creates a booking from intake data.
// POST /api/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req booking.IntakeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.svc.CreateFromIntake(r.Context(), &req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.cache.Invalidate(r.Context(), req.Date)
	writeJSON(w, http.StatusCreated, BookingResponse{Booking: b})
}

// handleBooking reads or mutates one booking.
// GET /api/bookings/{id}
// PATCH /api/bookings/{id} with an action-tagged command body
func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking")

	id, err := pathID(r.URL.Path, "/api/bookings/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.svc.Get(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BookingResponse{Booking: b})

	case http.MethodPatch:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read body")
			return
		}
		cmd, err := decodeCommand(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.applyCommand(w, r, id, cmd)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or PATCH")
	}
}

// applyCommand dispatches a decoded command to the domain services. The
// switch is exhaustive over the Command union.
func (s *HTTPServer) applyCommand(w http.ResponseWriter, r *http.Request, id int64, cmd Command) {
	ctx := r.Context()

	var (
		resp        BookingResponse
		err         error
		touchesRuns bool
	)
	switch c := cmd.(type) {
	case *ConfirmCommand:
		resp.Booking, err = s.svc.Confirm(ctx, id, c.Deposit, c.PaymentMethod)
		touchesRuns = true

	case *CancelCommand:
		release := true
		if c.ReleaseSlots != nil {
			release = *c.ReleaseSlots
		}
		resp.Booking, err = s.svc.Cancel(ctx, id, release)
		touchesRuns = release

	case *SaveInvoiceCommand:
		resp.Booking, err = s.svc.SaveInvoice(ctx, id, c.Invoice)

	case *UpdatePaymentCommand:
		resp.Booking, err = s.svc.UpdatePayment(ctx, id, c.Status, c.Paid, c.Tip, c.PaymentMethod)

	case *UpdateDepositCommand:
		resp.Booking, err = s.svc.UpdateDeposit(ctx, id, c.Deposit)

	case *RescheduleCommand:
		resp.Booking, err = s.resched.Reschedule(ctx, id, c.SlotIDs)
		touchesRuns = true

	case *SplitRescheduleCommand:
		var child1, child2 *models.Booking
		child1, child2, err = s.resched.SplitReschedule(ctx, id, c.Slot1ID, c.Slot2ID)
		if err == nil {
			s.invalidateBooking(r, child1)
			s.invalidateBooking(r, child2)
			writeJSON(w, http.StatusOK, SplitResponse{Children: []*models.Booking{child1, child2}})
			return
		}

	case *UpdateServiceTypeCommand:
		resp.Booking, resp.Warning, err = s.svc.UpdateServiceType(ctx, id, c.ServiceType)

	case *UpdateNailTechCommand:
		resp.Booking, resp.Warning, err = s.svc.UpdateTechnician(ctx, id, c.TechnicianID)

	case *SetStatusCommand:
		resp.Booking, err = s.svc.SetStatus(ctx, id, c.Status)
		touchesRuns = true

	default:
		writeError(w, http.StatusBadRequest, "unknown command")
		return
	}

	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if touchesRuns {
		s.invalidateBooking(r, resp.Booking)
	}
	writeJSON(w, http.StatusOK, resp)
}

// invalidateBooking drops cached availability for the dates a booking's
// slots sit on.
func (s *HTTPServer) invalidateBooking(r *http.Request, b *models.Booking) {
	if b == nil {
		return
	}
	seen := map[string]bool{}
	for _, id := range b.SlotIDs() {
		slot, err := s.db.GetSlot(r.Context(), id)
		if err != nil || seen[slot.Date] {
			continue
		}
		seen[slot.Date] = true
		s.cache.Invalidate(r.Context(), slot.Date)
	}
}

func pathID(path, prefix string) (int64, error) {
	raw := strings.TrimPrefix(path, prefix)
	raw = strings.TrimSuffix(raw, "/")
	return strconv.ParseInt(raw, 10, 64)
}
