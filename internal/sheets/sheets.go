// Package sheets mirrors bookings into a Google spreadsheet so front-desk
// staff keep their familiar view. The sqlite store stays authoritative;
// the mirror is one-way and periodic.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"nailbook/internal/events"
	"nailbook/internal/models"
)

const bookingsSheet = "Bookings"

var headerRow = []any{
	"Ref", "Date", "Time", "Technician", "Service", "Status",
	"Customer", "Deposit", "Paid", "Payment", "Notes", "Updated",
}

// BookingLister is the slice of the store the mirror reads.
type BookingLister interface {
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
}

// SheetsService mirrors bookings to a spreadsheet.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	store         BookingLister
	logger        *zerolog.Logger

	mu       sync.Mutex
	rowCache map[string]int // booking ref -> sheet row
}

// NewSheetsService authenticates with a service-account credentials file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, store BookingLister, logger *zerolog.Logger) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		store:         store,
		logger:        logger,
		rowCache:      make(map[string]int),
	}, nil
}

// Run mirrors on the interval until the context ends.
func (s *SheetsService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncWindow(ctx, 30); err != nil {
				s.logger.Error().Err(err).Msg("spreadsheet sync failed")
			}
		}
	}
}

// SyncWindow rewrites the sheet with the active bookings of the next days.
func (s *SheetsService) SyncWindow(ctx context.Context, days int) error {
	from := time.Now().Format(models.DateFormat)
	to := time.Now().AddDate(0, 0, days).Format(models.DateFormat)

	bookings, err := s.store.GetBookingsByDateRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	active := filterActiveBookings(bookings)

	values := [][]any{headerRow}
	for i := range active {
		b := &active[i]
		slot, err := s.store.GetSlot(ctx, b.SlotID)
		if err != nil {
			continue
		}
		values = append(values, bookingRowValues(b, slot))
	}

	rng := fmt.Sprintf("%s!A1", bookingsSheet)
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.mu.Lock()
	s.rowCache = make(map[string]int, len(active))
	for i := range active {
		// Row 1 is the header.
		s.rowCache[active[i].BookingID] = i + 2
	}
	s.mu.Unlock()

	s.logger.Info().Int("bookings", len(active)).Msg("spreadsheet mirrored")
	return nil
}

// Subscribe registers the mirror on the event bus so booking changes land
// in the sheet between periodic full syncs.
func (s *SheetsService) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCreated, s.onBookingEvent)
	bus.Subscribe(events.TypeBookingConfirmed, s.onBookingEvent)
	bus.Subscribe(events.TypeBookingCancelled, s.onBookingEvent)
	bus.Subscribe(events.TypeBookingRescheduled, s.onBookingEvent)
}

func (s *SheetsService) onBookingEvent(e events.Event) error {
	var b models.Booking
	if err := json.Unmarshal(e.Payload, &b); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	if err := s.SyncBooking(context.Background(), &b); err != nil {
		s.logger.Error().Err(err).Str("ref", b.BookingID).Msg("spreadsheet row sync failed")
		return err
	}
	return nil
}

// SyncBooking writes a single booking's sheet row in place when its row is
// known from the last full sync, and appends a fresh ref below the mirrored
// block. Cancellations remove a row and a cold cache has no row map, so
// both fall back to a full window rewrite.
func (s *SheetsService) SyncBooking(ctx context.Context, b *models.Booking) error {
	if b.Status == models.BookingCancelled {
		return s.SyncWindow(ctx, 30)
	}
	row, ok := s.getCachedRow(b.BookingID)
	if !ok {
		if s.cacheSize() == 0 {
			return s.SyncWindow(ctx, 30)
		}
		// Row 1 is the header, mirrored refs fill 2..size+1.
		row = s.cacheSize() + 2
	}

	slot, err := s.store.GetSlot(ctx, b.SlotID)
	if err != nil {
		return fmt.Errorf("load slot %d: %w", b.SlotID, err)
	}

	rng := fmt.Sprintf("%s!A%d", bookingsSheet, row)
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]any{bookingRowValues(b, slot)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	s.setCachedRow(b.BookingID, row)
	return nil
}

func (s *SheetsService) cacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rowCache)
}

func (s *SheetsService) getCachedRow(ref string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[ref]
	return row, ok
}

func (s *SheetsService) setCachedRow(ref string, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[ref] = row
}

// ClearCache drops the ref-to-row mapping, forcing a full rewrite next sync.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}

// filterActiveBookings drops cancelled bookings from the mirror.
func filterActiveBookings(bookings []models.Booking) []models.Booking {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == models.BookingCancelled {
			continue
		}
		active = append(active, b)
	}
	return active
}

// bookingRowValues flattens a booking into one sheet row.
func bookingRowValues(b *models.Booking, slot *models.Slot) []any {
	return []any{
		b.BookingID,
		slot.Date,
		slot.Time,
		b.TechnicianID,
		string(b.ServiceType),
		string(b.Status),
		b.CustomerID,
		b.DepositAmount,
		b.PaidAmount,
		string(b.PaymentStatus),
		b.Notes,
		b.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
