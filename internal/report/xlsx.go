package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSheet is the worksheet holding the report rows.
const XLSXSheet = "Standup"

var xlsxHeader = []any{"Repository", "Kind", "Actions", "Title", "URL"}

// WriteXLSX renders the report as a single-sheet workbook, one row per entry.
func (r Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetSheetRow(XLSXSheet, "A1", &xlsxHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(XLSXSheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	writeRows := func(section string, entries []Entry) error {
		for _, entry := range entries {
			cell, cellErr := excelize.CoordinatesToCellName(1, row)
			if cellErr != nil {
				return cellErr
			}
			values := []any{section, string(entry.Kind), strings.Join(entry.Actions, ", "), entry.Title, entry.URL}
			if err := f.SetSheetRow(XLSXSheet, cell, &values); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
		return nil
	}
	for _, name := range r.RepositoryNames() {
		if err := writeRows(name, r.Repositories[name]); err != nil {
			return err
		}
	}
	if err := writeRows(MeetingsSection, r.Meetings); err != nil {
		return err
	}

	for col, width := range map[string]float64{"A": 32, "B": 10, "C": 24, "D": 60, "E": 60} {
		if err := f.SetColWidth(XLSXSheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
