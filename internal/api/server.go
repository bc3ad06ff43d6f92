// Package api exposes the scheduling core over HTTP for the salon CRM.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nailbook/internal/booking"
	"nailbook/internal/cache"
	"nailbook/internal/database"
	"nailbook/internal/recovery"
	"nailbook/internal/schedule"
)

// HTTPServer serves the booking and slot management API.
type HTTPServer struct {
	db       *database.DB
	svc      *booking.Service
	resched  *booking.Rescheduler
	ingestor *recovery.Ingestor
	cache    *cache.AvailabilityCache
	redis    *redis.Client
	apiKey   string
	logger   *zerolog.Logger
}

// NewHTTPServer wires the API surface. redisClient may be nil.
func NewHTTPServer(
	db *database.DB,
	svc *booking.Service,
	resched *booking.Rescheduler,
	ingestor *recovery.Ingestor,
	availCache *cache.AvailabilityCache,
	redisClient *redis.Client,
	apiKey string,
	logger *zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		db:       db,
		svc:      svc,
		resched:  resched,
		ingestor: ingestor,
		cache:    availCache,
		redis:    redisClient,
		apiKey:   apiKey,
		logger:   logger,
	}
}

// Handler builds the routing table. All /api/ routes sit behind the API key
// check.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bookings", s.auth(s.handleBookings))
	mux.HandleFunc("/api/bookings/", s.auth(s.handleBooking))
	mux.HandleFunc("/api/slots", s.auth(s.handleSlots))
	mux.HandleFunc("/api/slots/", s.auth(s.handleSlot))
	mux.HandleFunc("/api/blocked-dates", s.auth(s.handleBlockedDates))
	mux.HandleFunc("/api/blocked-dates/", s.auth(s.handleBlockedDate))
	mux.HandleFunc("/api/recovery", s.auth(s.handleRecovery))
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *HTTPServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

// handleHealth reports process liveness plus db and redis reachability.
// GET /healthz
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if err := s.db.PingContext(r.Context()); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
		} else {
			status["redis"] = "ok"
		}
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes. Lifecycle misuse and
// every flavor of slot contention are conflicts; bad input is the caller's
// fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, schedule.ErrBadAnchor),
		errors.Is(err, schedule.ErrGridExhausted):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrInvalidState),
		errors.Is(err, database.ErrSlotConflict),
		errors.Is(err, database.ErrSlotUnavailable),
		errors.Is(err, database.ErrSlotReferenced),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, schedule.ErrSlotTaken),
		errors.Is(err, schedule.ErrDateBlocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}
