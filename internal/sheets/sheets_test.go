package sheets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"nailbook/internal/models"
)

type stubStore struct {
	bookings   []models.Booking
	slot       *models.Slot
	rangeCalls int
}

func (s *stubStore) GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error) {
	s.rangeCalls++
	return s.bookings, nil
}

func (s *stubStore) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	return s.slot, nil
}

// newTestMirror backs the Sheets client with a local endpoint and records
// the value ranges each write targets.
func newTestMirror(t *testing.T, store *stubStore, rowCache map[string]int) (*SheetsService, *[]string) {
	t.Helper()
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		paths = append(paths, r.URL.Path+" "+string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(ts.Close)

	srv, err := sheetsv4.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("Sheets client: %v", err)
	}
	logger := zerolog.New(io.Discard)
	return &SheetsService{
		srv:           srv,
		spreadsheetID: "sheet-1",
		store:         store,
		logger:        &logger,
		rowCache:      rowCache,
	}, &paths
}

func TestFilterActiveBookings(t *testing.T) {
	bookings := []models.Booking{
		{ID: 1, Status: models.BookingPendingForm},
		{ID: 2, Status: models.BookingPendingPayment},
		{ID: 3, Status: models.BookingConfirmed},
		{ID: 4, Status: models.BookingCancelled},
	}

	active := filterActiveBookings(bookings)

	if len(active) != 3 {
		t.Errorf("Expected 3 active bookings, got %d", len(active))
	}
	for _, b := range active {
		if b.Status == models.BookingCancelled {
			t.Errorf("Cancelled booking found in active list")
		}
	}
}

func TestBookingRowValues(t *testing.T) {
	updatedAt := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	b := &models.Booking{
		BookingID:     "NB-20260302-1a2b3c4d",
		TechnicianID:  2,
		ServiceType:   models.ServiceManiPedi,
		Status:        models.BookingConfirmed,
		CustomerID:    "anna",
		DepositAmount: 20,
		PaidAmount:    55,
		PaymentStatus: models.PaymentPaid,
		Notes:         "regular",
		UpdatedAt:     updatedAt,
	}
	slot := &models.Slot{Date: "2026-03-02", Time: "10:00"}

	values := bookingRowValues(b, slot)

	expected := []any{
		"NB-20260302-1a2b3c4d",
		"2026-03-02",
		"10:00",
		int64(2),
		"mani_pedi",
		"confirmed",
		"anna",
		float64(20),
		float64(55),
		"paid",
		"regular",
		"2026-03-01 11:30:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsService{rowCache: make(map[string]int)}

	s.setCachedRow("NB-1", 5)
	row, ok := s.getCachedRow("NB-1")
	if !ok || row != 5 {
		t.Errorf("Expected row 5, got %d (ok=%v)", row, ok)
	}

	s.ClearCache()
	if _, ok = s.getCachedRow("NB-1"); ok {
		t.Errorf("Expected cache to be cleared")
	}
}

func TestSyncBookingUpdatesCachedRow(t *testing.T) {
	store := &stubStore{slot: &models.Slot{Date: "2026-03-02", Time: "10:00"}}
	s, paths := newTestMirror(t, store, map[string]int{"NB-A": 4})

	b := &models.Booking{BookingID: "NB-A", SlotID: 7, Status: models.BookingConfirmed}
	if err := s.SyncBooking(context.Background(), b); err != nil {
		t.Fatalf("SyncBooking: %v", err)
	}

	if len(*paths) != 1 {
		t.Fatalf("Expected 1 sheet write, got %d", len(*paths))
	}
	if !strings.Contains((*paths)[0], "/values/Bookings!A4") {
		t.Errorf("Expected write to row 4, got %s", (*paths)[0])
	}
	if !strings.Contains((*paths)[0], "NB-A") {
		t.Errorf("Expected row values to carry the ref, got %s", (*paths)[0])
	}
	if store.rangeCalls != 0 {
		t.Errorf("Expected no full rewrite, store was scanned %d times", store.rangeCalls)
	}
}

func TestSyncBookingAppendsUnknownRef(t *testing.T) {
	store := &stubStore{slot: &models.Slot{Date: "2026-03-02", Time: "11:00"}}
	s, paths := newTestMirror(t, store, map[string]int{"NB-A": 2, "NB-B": 3})

	b := &models.Booking{BookingID: "NB-C", SlotID: 9, Status: models.BookingPendingForm}
	if err := s.SyncBooking(context.Background(), b); err != nil {
		t.Fatalf("SyncBooking: %v", err)
	}

	if len(*paths) != 1 || !strings.Contains((*paths)[0], "/values/Bookings!A4") {
		t.Fatalf("Expected append below the mirrored block, got %v", *paths)
	}
	if row, ok := s.getCachedRow("NB-C"); !ok || row != 4 {
		t.Errorf("Expected NB-C cached at row 4, got %d (ok=%v)", row, ok)
	}
}

func TestSyncBookingCancelledRewritesWindow(t *testing.T) {
	store := &stubStore{
		bookings: []models.Booking{{BookingID: "NB-A", SlotID: 7, Status: models.BookingConfirmed}},
		slot:     &models.Slot{Date: "2026-03-02", Time: "10:00"},
	}
	s, paths := newTestMirror(t, store, map[string]int{"NB-A": 2, "NB-GONE": 3})

	b := &models.Booking{BookingID: "NB-GONE", SlotID: 8, Status: models.BookingCancelled}
	if err := s.SyncBooking(context.Background(), b); err != nil {
		t.Fatalf("SyncBooking: %v", err)
	}

	if store.rangeCalls != 1 {
		t.Fatalf("Expected a full window scan, got %d", store.rangeCalls)
	}
	if len(*paths) != 1 || !strings.Contains((*paths)[0], "/values/Bookings!A1") {
		t.Fatalf("Expected full sheet rewrite from A1, got %v", *paths)
	}
	if row, ok := s.getCachedRow("NB-A"); !ok || row != 2 {
		t.Errorf("Expected rebuilt cache to keep NB-A at row 2, got %d (ok=%v)", row, ok)
	}
	if _, ok := s.getCachedRow("NB-GONE"); ok {
		t.Errorf("Expected cancelled ref dropped from rebuilt cache")
	}
}
