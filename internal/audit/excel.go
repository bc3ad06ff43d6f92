package audit

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter writes tabular export data.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	SaveToFile(path string) error
}

// ExcelizeWriter implements ExcelWriter on the excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelizeWriter creates a new workbook writer.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet adds a sheet and makes it current.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Excel caps sheet names at 31 chars.
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes a bold header row.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}

	w.currentRow++
	return nil
}

// WriteRow appends a data row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}

	w.currentRow++
	return nil
}

// Save writes the workbook to w.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// SaveToFile writes the workbook to disk.
func (w *ExcelizeWriter) SaveToFile(path string) error {
	return w.file.SaveAs(path)
}
