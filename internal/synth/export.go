package synth

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/autotrain/internal/domain/dataset"
)

const sheetName = "vehicles"

// WriteFile writes records to path as CSV or XLSX, chosen by extension.
func WriteFile(path string, records []dataset.Record) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteCSV(f, records); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	case ".xlsx":
		return WriteXLSX(path, records)
	default:
		return fmt.Errorf("unsupported output %s: want .csv or .xlsx", path)
	}
}

// present returns the Columns that at least one record carries.
func present(records []dataset.Record) []string {
	out := make([]string, 0, len(Columns))
	for _, c := range Columns {
		for _, rec := range records {
			if _, ok := rec[c]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// WriteCSV writes records with a header row of the Columns they carry.
func WriteCSV(w io.Writer, records []dataset.Record) error {
	cols := present(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for j, c := range cols {
			row[j] = dataset.FormatCell(dataset.Normalize(rec[c]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records to a single-sheet workbook.
func WriteXLSX(path string, records []dataset.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	cols := present(records)
	header := make([]any, len(cols))
	for j, c := range cols {
		header[j] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, rec := range records {
		row := make([]any, len(cols))
		for j, c := range cols {
			if v := dataset.Normalize(rec[c]); v != nil {
				row[j] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	return f.SaveAs(path)
}
