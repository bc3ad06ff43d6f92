// Package recovery rebuilds bookings from spreadsheet exports. Salons keep
// ad-hoc xlsx schedules; after a data loss the workbook is uploaded and
// each row is turned back into an intake request.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"nailbook/internal/booking"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
)

// BookingCreator is the slice of the booking service the ingestor needs.
type BookingCreator interface {
	CreateFromIntake(ctx context.Context, req *booking.IntakeRequest) (*models.Booking, error)
}

// RowError records why a row could not be recovered.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report summarizes an ingest run.
type Report struct {
	Created int        `json:"created"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

// Ingestor parses workbook rows into bookings.
type Ingestor struct {
	creator BookingCreator
	logger  *zerolog.Logger
}

// NewIngestor wires the ingestor.
func NewIngestor(creator BookingCreator, logger *zerolog.Logger) *Ingestor {
	return &Ingestor{creator: creator, logger: logger}
}

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashDateRe = regexp.MustCompile(`^(\d{2})[./](\d{2})[./](\d{4})$`)
	timeRe      = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	intRe       = regexp.MustCompile(`^\d+$`)
)

var serviceKeywords = map[string]models.ServiceType{
	"manicure":    models.ServiceManicure,
	"mani":        models.ServiceManicure,
	"pedicure":    models.ServicePedicure,
	"pedi":        models.ServicePedicure,
	"gel":         models.ServiceGelSet,
	"gel set":     models.ServiceGelSet,
	"gel_set":     models.ServiceGelSet,
	"mani pedi":   models.ServiceManiPedi,
	"mani-pedi":   models.ServiceManiPedi,
	"mani_pedi":   models.ServiceManiPedi,
	"spa":         models.ServiceSpaPackage,
	"spa package": models.ServiceSpaPackage,
	"spa_package": models.ServiceSpaPackage,
}

// Ingest reads the first sheet of the workbook and creates a booking per
// parseable row. Rows that fail to parse or conflict with live slots are
// reported, never fatal: the caller inspects the report.
func (n *Ingestor) Ingest(ctx context.Context, r io.Reader) (*Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return n.IngestRows(ctx, rows), nil
}

// IngestRows runs the same recovery over rows already split into cells,
// for callers that post data directly instead of uploading a workbook.
func (n *Ingestor) IngestRows(ctx context.Context, rows [][]string) *Report {
	report := &Report{}
	for i, row := range rows {
		req, err := parseRow(row)
		if err != nil {
			if errors.Is(err, errEmptyRow) || errors.Is(err, errHeaderRow) {
				report.Skipped++
				continue
			}
			report.Errors = append(report.Errors, RowError{Row: i + 1, Reason: err.Error()})
			metrics.IncRecoveryRow("parse_error")
			continue
		}

		if _, err := n.creator.CreateFromIntake(ctx, req); err != nil {
			report.Errors = append(report.Errors, RowError{Row: i + 1, Reason: err.Error()})
			metrics.IncRecoveryRow("rejected")
			continue
		}
		report.Created++
		metrics.IncRecoveryRow("created")
	}

	n.logger.Info().
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Msg("rows ingested")
	return report
}

var (
	errEmptyRow  = errors.New("empty row")
	errHeaderRow = errors.New("header row")
)

// parseRow infers the row's fields by shape rather than by position: the
// date cell matches a date pattern, the time cell a grid token, the service
// cell a known keyword, a bare integer is the technician. Free text becomes
// the customer, then notes.
func parseRow(row []string) (*booking.IntakeRequest, error) {
	req := &booking.IntakeRequest{}
	var freeText []string

	for _, raw := range row {
		cell := strings.TrimSpace(raw)
		if cell == "" {
			continue
		}
		lower := strings.ToLower(cell)

		switch {
		case isoDateRe.MatchString(cell):
			req.Date = cell
		case slashDateRe.MatchString(cell):
			m := slashDateRe.FindStringSubmatch(cell)
			req.Date = fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
		case timeRe.MatchString(cell):
			if t, err := time.Parse("15:04", pad(cell)); err == nil {
				req.Time = t.Format(models.TimeFormat)
			}
		case req.ServiceType == "" && serviceKeywords[lower] != "":
			req.ServiceType = serviceKeywords[lower]
		case intRe.MatchString(cell):
			if id, err := strconv.ParseInt(cell, 10, 64); err == nil && req.TechnicianID == 0 {
				req.TechnicianID = id
			}
		default:
			freeText = append(freeText, cell)
		}
	}

	if req.Date == "" && req.Time == "" && req.ServiceType == "" {
		if len(freeText) > 0 {
			return nil, errHeaderRow
		}
		return nil, errEmptyRow
	}
	if req.Date == "" {
		return nil, errors.New("no date cell found")
	}
	if req.Time == "" {
		return nil, errors.New("no time cell found")
	}
	if req.ServiceType == "" {
		return nil, errors.New("no service cell found")
	}
	if req.TechnicianID == 0 {
		return nil, errors.New("no technician cell found")
	}

	if len(freeText) > 0 {
		req.CustomerID = freeText[0]
	}
	if len(freeText) > 1 {
		req.Notes = strings.Join(freeText[1:], "; ")
	}
	return req, nil
}

func pad(token string) string {
	if len(token) == 4 {
		return "0" + token
	}
	return token
}
