package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nailbook/internal/metrics"
	"nailbook/internal/models"
)

// CreateSlotRequest is the body of POST /api/slots.
type CreateSlotRequest struct {
	TechnicianID int64  `json:"technician_id"`
	Date         string `json:"date"` // Format: YYYY-MM-DD
	Time         string `json:"time"` // Format: HH:MM grid token
	Status       string `json:"status,omitempty"`
	Type         string `json:"type,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
}

// handleSlots lists or creates slots.
// GET /api/slots?date=YYYY-MM-DD&tech_id=N
// POST /api/slots
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	switch r.Method {
	case http.MethodGet:
		s.listSlots(w, r)
	case http.MethodPost:
		s.createSlot(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

func (s *HTTPServer) listSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(models.DateFormat, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	techStr := r.URL.Query().Get("tech_id")
	if techStr == "" {
		slots, err := s.db.ListSlotsByDate(r.Context(), date)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
		return
	}

	techID, err := strconv.ParseInt(techStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tech_id")
		return
	}

	if slots, ok := s.cache.Get(r.Context(), date, techID); ok {
		writeJSON(w, http.StatusOK, map[string]any{"slots": slots, "cached": true})
		return
	}

	slots, err := s.db.FindSlotsByDateAndTech(r.Context(), date, techID, false)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.cache.Set(r.Context(), date, techID, slots)
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) createSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.TechnicianID <= 0 {
		writeError(w, http.StatusBadRequest, "technician_id is required")
		return
	}
	if _, err := time.Parse(models.DateFormat, req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	if !s.resched.Grid().Contains(req.Time) {
		writeError(w, http.StatusBadRequest, "time is not on the scheduling grid")
		return
	}
	slotType := models.SlotType(req.Type)
	if req.Type != "" && slotType != models.SlotRegular && slotType != models.SlotSurcharge {
		writeError(w, http.StatusBadRequest, "invalid slot type")
		return
	}
	// pending/confirmed belong to bookings; inventory slots start out
	// available or blocked.
	status := models.SlotStatus(req.Status)
	if req.Status != "" && status != models.SlotAvailable && status != models.SlotBlocked {
		writeError(w, http.StatusBadRequest, "invalid status; expected available or blocked")
		return
	}

	slot := &models.Slot{
		TechnicianID: req.TechnicianID,
		Date:         req.Date,
		Time:         req.Time,
		Status:       status,
		Type:         slotType,
		Notes:        req.Notes,
		Hidden:       req.Hidden,
	}
	if err := s.db.CreateSlot(r.Context(), slot); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), req.Date)
	writeJSON(w, http.StatusCreated, slot)
}

// handleSlot deletes one slot.
// DELETE /api/slots/{id}
func (s *HTTPServer) handleSlot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slot")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use DELETE")
		return
	}

	id, err := pathID(r.URL.Path, "/api/slots/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	slot, err := s.db.GetSlot(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.db.DeleteSlot(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), slot.Date)
	w.WriteHeader(http.StatusNoContent)
}

// BlockedDateRequest is the body of POST /api/blocked-dates.
type BlockedDateRequest struct {
	StartDate string `json:"start_date"` // Format: YYYY-MM-DD
	EndDate   string `json:"end_date"`   // Format: YYYY-MM-DD
	Reason    string `json:"reason,omitempty"`
}

// handleBlockedDates lists or creates blackout ranges.
// GET /api/blocked-dates
// POST /api/blocked-dates
func (s *HTTPServer) handleBlockedDates(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocked_dates")
	switch r.Method {
	case http.MethodGet:
		ranges, err := s.db.ListBlockedRanges(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"blocked_dates": ranges})

	case http.MethodPost:
		var req BlockedDateRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, err := time.Parse(models.DateFormat, req.StartDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
			return
		}
		if _, err := time.Parse(models.DateFormat, req.EndDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
			return
		}

		bd := &models.BlockedDate{StartDate: req.StartDate, EndDate: req.EndDate, Reason: req.Reason}
		if err := s.db.AddBlockedRange(r.Context(), bd); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for d := req.StartDate; d <= req.EndDate; d = nextDate(d) {
			s.cache.Invalidate(r.Context(), d)
		}
		writeJSON(w, http.StatusCreated, bd)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

// handleBlockedDate removes one blackout range.
// DELETE /api/blocked-dates/{id}
func (s *HTTPServer) handleBlockedDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocked_date")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use DELETE")
		return
	}

	id, err := pathID(r.URL.Path, "/api/blocked-dates/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid blocked date id")
		return
	}
	if err := s.db.RemoveBlockedRange(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoveryRequest is the JSON body of POST /api/recovery when rows are
// posted directly instead of as a workbook upload.
type RecoveryRequest struct {
	Rows [][]string `json:"rows"`
}

// handleRecovery rebuilds bookings from an uploaded spreadsheet (multipart
// field "file") or from raw rows posted as JSON.
// POST /api/recovery
func (s *HTTPServer) handleRecovery(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("recovery")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req RecoveryRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.Rows) == 0 {
			writeError(w, http.StatusBadRequest, "rows are required")
			return
		}
		writeJSON(w, http.StatusOK, s.ingestor.IngestRows(r.Context(), req.Rows))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() { _ = file.Close() }()

	report, err := s.ingestor.Ingest(r.Context(), file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func nextDate(d string) string {
	t, err := time.Parse(models.DateFormat, d)
	if err != nil {
		return "9999-12-31"
	}
	return t.AddDate(0, 0, 1).Format(models.DateFormat)
}
