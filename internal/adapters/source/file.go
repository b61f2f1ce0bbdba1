package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/autotrain/internal/domain/dataset"
)

// File reads records from a CSV or XLSX export. The first row holds the
// column names.
type File struct {
	path       string
	nullTokens map[string]struct{}
}

var (
	_ Source  = (*File)(nil)
	_ Textual = (*File)(nil)
)

// NewFile creates a file source. The format is chosen by extension.
func NewFile(path string, opts ...FileOption) (*File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
	default:
		return nil, fmt.Errorf("%w: file %s must be .csv or .xlsx", ErrUnsupported, path)
	}
	f := &File{path: path, nullTokens: dataset.DefaultNullTokens()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Textual reports true: every cell was read as text.
func (f *File) Textual() bool { return true }

// FetchRecords reads the whole file and applies the query. For XLSX files a
// non-empty collection names the sheet; otherwise the first sheet is used.
func (f *File) FetchRecords(ctx context.Context, q Query) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(f.path), ".xlsx") {
		rows, err = f.readXLSX(q.Collection)
	} else {
		rows, err = f.readCSV()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []dataset.Record{}, nil
	}
	records, err := dataset.RecordsFromRows(rows, f.nullTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, f.path, err)
	}
	return apply(records, q), nil
}

func (f *File) readCSV() ([][]string, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, f.path, err)
	}
	return rows, nil
}

func (f *File) readXLSX(sheet string) ([][]string, error) {
	x, err := excelize.OpenFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer x.Close()

	if sheet == "" {
		sheet = x.GetSheetName(0)
	}
	rows, err := x.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %w", ErrDecode, sheet, err)
	}
	return rows, nil
}
