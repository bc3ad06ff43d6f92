// Package audit produces monthly booking exports for the salon's books and
// prunes stale cancelled rows afterwards.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"nailbook/internal/ledger"
	"nailbook/internal/models"
)

// BookingSource is the slice of the store the exporter reads.
type BookingSource interface {
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]models.Booking, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	DeleteOldCancelledBookings(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config controls export cadence and retention.
type Config struct {
	// RetentionDays is how long cancelled bookings are kept. Default 31.
	RetentionDays int
	// ExportDir receives the monthly workbooks.
	ExportDir string
}

// Service writes one workbook per month and cleans up old cancelled rows.
type Service struct {
	config Config
	source BookingSource
	writer func() ExcelWriter
	logger *zerolog.Logger
}

// NewService wires the audit exporter. writerFactory produces a fresh
// workbook per export.
func NewService(config Config, source BookingSource, writerFactory func() ExcelWriter, logger *zerolog.Logger) *Service {
	if config.RetentionDays <= 0 {
		config.RetentionDays = 31
	}
	if config.ExportDir == "" {
		config.ExportDir = "exports"
	}
	return &Service{config: config, source: source, writer: writerFactory, logger: logger}
}

var exportHeader = []string{
	"Ref", "Date", "Time", "Technician", "Service", "Status",
	"Customer", "Deposit", "Paid", "Tip", "Balance", "Payment Status",
}

// Filename returns the workbook name for a month, e.g. "March_2026.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("%s_%d.xlsx", t.Month().String(), t.Year())
}

// ExportMonth writes every booking of the month into a workbook.
func (s *Service) ExportMonth(ctx context.Context, month time.Time) (string, error) {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	bookings, err := s.source.GetBookingsByDateRange(ctx,
		first.Format(models.DateFormat), last.Format(models.DateFormat))
	if err != nil {
		return "", fmt.Errorf("load bookings: %w", err)
	}

	w := s.writer()
	if err := w.AddSheet(month.Month().String()); err != nil {
		return "", err
	}
	if err := w.WriteHeader(exportHeader); err != nil {
		return "", err
	}

	for i := range bookings {
		b := &bookings[i]
		slot, err := s.source.GetSlot(ctx, b.SlotID)
		if err != nil {
			return "", fmt.Errorf("slot %d: %w", b.SlotID, err)
		}
		row := []any{
			b.BookingID,
			slot.Date,
			slot.Time,
			b.TechnicianID,
			string(b.ServiceType),
			string(b.Status),
			b.CustomerID,
			b.DepositAmount,
			b.PaidAmount,
			b.TipAmount,
			ledger.Balance(b.Invoice, b.DepositAmount, b.PaidAmount),
			string(b.PaymentStatus),
		}
		if err := w.WriteRow(row); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.config.ExportDir, Filename(month))
	if err := w.SaveToFile(path); err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}

	s.logger.Info().Str("path", path).Int("bookings", len(bookings)).Msg("monthly export written")
	return path, nil
}

// Cleanup deletes cancelled bookings past retention.
func (s *Service) Cleanup(ctx context.Context) error {
	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	deleted, err := s.source.DeleteOldCancelledBookings(ctx, retention)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("old cancelled bookings pruned")
	}
	return nil
}

// Run exports the previous month on the first day of each month, then
// prunes. It checks daily.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Day() != 1 {
				continue
			}
			prev := now.AddDate(0, -1, 0)
			if _, err := s.ExportMonth(ctx, prev); err != nil {
				s.logger.Error().Err(err).Msg("monthly export failed")
				continue
			}
			if err := s.Cleanup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("cleanup failed")
			}
		}
	}
}
