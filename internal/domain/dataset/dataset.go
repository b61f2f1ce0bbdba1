// Package dataset provides the immutable, column-typed table that flows
// between pipeline stages.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/okian/autotrain/internal/domain/schema"
)

// Null is the inferred type of a column that holds no values at all.
const Null schema.Type = "null"

// Record is one schema-agnostic row as fetched from a source.
type Record = map[string]any

// Column is a named, typed, read-only vector of cells. Cells are float64,
// string, bool or nil.
type Column struct {
	name  string
	typ   schema.Type
	vals  []any
	nulls int
}

// NewColumn normalizes values and infers the column type.
func NewColumn(name string, values []any) Column {
	c := Column{name: name, vals: make([]any, len(values))}
	for i, v := range values {
		nv := normalize(v)
		if nv == nil {
			c.nulls++
		}
		c.vals[i] = nv
	}
	c.typ = infer(c.vals)
	return c
}

// subset copies the cells at idx without re-inferring the type.
func (c Column) subset(idx []int) Column {
	out := Column{name: c.name, typ: c.typ, vals: make([]any, len(idx))}
	for k, i := range idx {
		v := c.vals[i]
		if v == nil {
			out.nulls++
		}
		out.vals[k] = v
	}
	return out
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// Type returns the inferred column type.
func (c Column) Type() schema.Type { return c.typ }

// Len returns the number of cells.
func (c Column) Len() int { return len(c.vals) }

// Nulls returns the number of null cells.
func (c Column) Nulls() int { return c.nulls }

// Value returns the raw cell at i.
func (c Column) Value(i int) any { return c.vals[i] }

// Float returns the numeric value of cell i. Booleans map to 0/1.
func (c Column) Float(i int) (float64, bool) {
	return AsFloat(c.vals[i])
}

// Normalize converts a raw source value to a cell: float64, string, bool or nil.
func Normalize(v any) any { return normalize(v) }

// AsFloat converts a normalized cell to float64.
func AsFloat(v any) (float64, bool) {
	switch x := normalize(v).(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// normalize maps the value shapes produced by decoders onto float64, string,
// bool or nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case float32:
		return normalize(float64(x))
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case bool, string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func infer(vals []any) schema.Type {
	var nums, ints, strs, bools, total int
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
			continue
		case float64:
			nums++
			if x == math.Trunc(x) && !math.IsInf(x, 0) {
				ints++
			}
		case bool:
			bools++
		case string:
			strs++
		}
		total++
	}
	switch {
	case total == 0:
		return Null
	case strs > 0 || (nums > 0 && bools > 0):
		return schema.TypeString
	case bools == total:
		return schema.TypeBool
	case ints == total:
		return schema.TypeInt
	default:
		return schema.TypeFloat
	}
}

// Table is an immutable rectangular dataset of named columns.
type Table struct {
	cols  []Column
	index map[string]int
	rows  int
}

// New builds a table from columns of equal length.
func New(cols ...Column) (*Table, error) {
	t := &Table{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if _, dup := t.index[c.name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, c.name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrShape, c.name, c.Len(), t.rows)
		}
		t.index[c.name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// FromRecords builds a table from schema-agnostic records. Columns are the
// sorted union of record keys; absent keys become nulls.
func FromRecords(records []Record) *Table {
	keys := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for j, name := range names {
		vals := make([]any, len(records))
		for i, r := range records {
			vals[i] = r[name]
		}
		cols[j] = NewColumn(name, vals)
	}
	t, _ := New(cols...) // names are unique and lengths equal by construction
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.name
	}
	return out
}

// Columns returns the columns in order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// Has reports whether the table carries a column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row materializes row i as a record.
func (t *Table) Row(i int) Record {
	r := make(Record, len(t.cols))
	for _, c := range t.cols {
		r[c.name] = c.vals[i]
	}
	return r
}

// Drop returns a new table without the named columns.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	kept := make([]Column, 0, len(t.cols))
	for _, c := range t.cols {
		if _, ok := skip[c.name]; !ok {
			kept = append(kept, c)
		}
	}
	out, _ := New(kept...)
	if len(kept) == 0 {
		out.rows = t.rows
	}
	return out
}

// Take returns a new table holding the rows at idx, in that order.
// Columns keep the type inferred on the parent table.
func (t *Table) Take(idx []int) *Table {
	cols := make([]Column, len(t.cols))
	for j, c := range t.cols {
		cols[j] = c.subset(idx)
	}
	out, _ := New(cols...)
	if len(cols) == 0 {
		out.rows = len(idx)
	}
	return out
}

// Split deterministically shuffles rows with seed and partitions them into a
// train and a test table. testRatio must be within (0, 1).
func (t *Table) Split(testRatio float64, seed int64) (train, test *Table, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("%w: test ratio %v outside (0, 1)", ErrSplit, testRatio)
	}
	if t.rows < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows, have %d", ErrSplit, t.rows)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(t.rows) //nolint:gosec // reproducible split, not security sensitive
	nTest := int(math.Round(float64(t.rows) * testRatio))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > t.rows-1 {
		nTest = t.rows - 1
	}
	testIdx := append([]int(nil), perm[:nTest]...)
	trainIdx := append([]int(nil), perm[nTest:]...)
	sort.Ints(testIdx)
	sort.Ints(trainIdx)
	return t.Take(trainIdx), t.Take(testIdx), nil
}

// FormatCell renders a cell for text output. Nulls render as "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// ParseCell interprets a text cell: null tokens become nil, numbers become
// float64, true/false become bool, anything else stays a string.
func ParseCell(s string, nullTokens map[string]struct{}) any {
	if _, ok := nullTokens[s]; ok {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch s {
	case "true", "TRUE", "True":
		return true
	case "false", "FALSE", "False":
		return false
	}
	return s
}

// DefaultNullTokens are the text values treated as missing data.
func DefaultNullTokens() map[string]struct{} {
	return map[string]struct{}{
		"":     {},
		"na":   {},
		"NA":   {},
		"N/A":  {},
		"NaN":  {},
		"nan":  {},
		"null": {},
		"NULL": {},
		"None": {},
	}
}
