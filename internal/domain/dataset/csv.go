package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// WriteCSV writes the table with a header row. Nulls are written as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(t.cols))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.cols {
			row[j] = FormatCell(c.vals[i])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV renders the table as CSV bytes.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordsFromRows converts a header row plus string rows into records,
// parsing each cell with ParseCell. Short rows yield nulls.
func RecordsFromRows(rows [][]string, nullTokens map[string]struct{}) ([]Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrShape)
	}
	header := make([]string, len(rows[0]))
	for j, h := range rows[0] {
		header[j] = strings.TrimSpace(h)
		if header[j] == "" {
			return nil, fmt.Errorf("%w: empty header in column %d", ErrShape, j+1)
		}
	}
	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		r := make(Record, len(header))
		for j, name := range header {
			if j < len(row) {
				r[name] = ParseCell(strings.TrimSpace(row[j]), nullTokens)
			} else {
				r[name] = nil
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
