package recovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"nailbook/internal/booking"
	"nailbook/internal/database"
	"nailbook/internal/events"
	"nailbook/internal/models"
	"nailbook/internal/schedule"
)

func newTestIngestor(t *testing.T) (*Ingestor, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	grid, err := schedule.NewGrid("09:00", "18:00", 30)
	require.NoError(t, err)
	resolver := schedule.NewResolver(db, grid, &logger)
	svc := booking.NewService(db, resolver, events.NewEventBus(), &logger)
	return NewIngestor(svc, &logger), db
}

func workbook(t *testing.T, rows [][]string) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, cell))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestIngest_CreatesBookings(t *testing.T) {
	ing, db := newTestIngestor(t)
	ctx := context.Background()

	report, err := ing.Ingest(ctx, workbook(t, [][]string{
		{"Date", "Time", "Tech", "Service", "Customer"},
		{"2026-03-02", "10:00", "1", "manicure", "Anna"},
		{"02.03.2026", "11:00", "2", "mani pedi", "Kim", "walk-in"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Errors)

	slots, err := db.ListSlotsByDate(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, slots, 3) // one manicure slot + two mani_pedi slots

	bookings, err := db.GetBookingsByDateRange(ctx, "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	for _, b := range bookings {
		if b.ServiceType == models.ServiceManiPedi {
			assert.Equal(t, "Kim", b.CustomerID)
			assert.Equal(t, "walk-in", b.Notes)
		}
	}
}

func TestIngest_ReportsBadAndConflictingRows(t *testing.T) {
	ing, _ := newTestIngestor(t)
	ctx := context.Background()

	report, err := ing.Ingest(ctx, workbook(t, [][]string{
		{"2026-03-02", "10:00", "1", "manicure", "Anna"},
		{"2026-03-02", "10:00", "1", "pedicure", "Kim"}, // same slot
		{"2026-03-02", "1", "manicure"},                 // no time cell
		{"2026-03-02", "10:13", "1", "manicure"},        // off-grid time
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Errors, 3)
	for _, re := range report.Errors {
		assert.NotEmpty(t, re.Reason, fmt.Sprintf("row %d", re.Row))
	}
}

func TestIngest_NotAWorkbook(t *testing.T) {
	ing, _ := newTestIngestor(t)
	_, err := ing.Ingest(context.Background(), bytes.NewReader([]byte("csv,not,xlsx")))
	assert.Error(t, err)
}
