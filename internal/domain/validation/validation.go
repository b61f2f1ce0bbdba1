// Package validation checks datasets against the schema contract.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/schema"
)

// Validate checks ds against c and returns an immutable report. It never
// modifies the dataset.
//
// Type tolerance: a declared float accepts an inferred int, every other
// declared type must match exactly, and a column holding only nulls matches
// any declared type. A non-nullable column that contains nulls is reported
// as a mismatch whose actual type carries a "?" suffix.
func Validate(ds model.DatasetArtifact, c *schema.Contract) model.ValidationReport {
	r := model.ValidationReport{
		Dataset:        ds.Name,
		Messages:       []string{},
		MissingColumns: []string{},
		TypeMismatches: []model.Mismatch{},
		Rows:           ds.Rows(),
		CheckedAt:      time.Now().UTC(),
	}
	t := ds.Table
	if t == nil {
		t = dataset.FromRecords(nil)
	}

	for _, col := range c.Columns() {
		actual, ok := t.Column(col.Name)
		if !ok {
			r.MissingColumns = append(r.MissingColumns, col.Name)
			continue
		}
		if m, bad := check(col, actual); bad {
			r.TypeMismatches = append(r.TypeMismatches, m)
		}
	}
	sort.Strings(r.MissingColumns)
	sort.Slice(r.TypeMismatches, func(i, j int) bool {
		return r.TypeMismatches[i].Column < r.TypeMismatches[j].Column
	})

	for _, name := range r.MissingColumns {
		r.Messages = append(r.Messages, fmt.Sprintf("missing column %q", name))
	}
	for _, m := range r.TypeMismatches {
		r.Messages = append(r.Messages, fmt.Sprintf("column %q: expected %s, found %s", m.Column, m.Expected, m.Actual))
	}
	if r.Rows == 0 {
		r.Messages = append(r.Messages, "dataset has no rows")
	}
	for _, name := range extra(t, c) {
		r.Messages = append(r.Messages, fmt.Sprintf("column %q is not in the schema and will be ignored", name))
	}

	r.Status = model.StatusFail
	if len(r.MissingColumns) == 0 && len(r.TypeMismatches) == 0 && r.Rows > 0 {
		r.Status = model.StatusPass
		r.Messages = append(r.Messages, fmt.Sprintf("%d rows, %d columns conform to the schema", r.Rows, t.Width()))
	}
	return r
}

func check(col schema.Column, actual dataset.Column) (model.Mismatch, bool) {
	typ := actual.Type()
	typeOK := typ == dataset.Null || col.Type.Accepts(typ)
	nullOK := col.Nullable || actual.Nulls() == 0
	if typeOK && nullOK {
		return model.Mismatch{}, false
	}

	expected := string(col.Type)
	if col.Nullable {
		expected += "?"
	}
	found := string(typ)
	if actual.Nulls() > 0 && typ != dataset.Null {
		found += "?"
	}
	return model.Mismatch{Column: col.Name, Expected: expected, Actual: found}, true
}

func extra(t *dataset.Table, c *schema.Contract) []string {
	var out []string
	for _, name := range t.Names() {
		if _, ok := c.Column(name); !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Err converts a failing report into a pipeline error. An otherwise
// conforming dataset with no rows is a data-integrity error; anything else
// is a schema violation. A passing report yields nil.
func Err(r model.ValidationReport) error {
	if r.Passed() {
		return nil
	}
	if len(r.MissingColumns) == 0 && len(r.TypeMismatches) == 0 {
		return fmt.Errorf("%w: dataset %q has no rows", failure.ErrDataIntegrity, r.Dataset)
	}
	var parts []string
	if len(r.MissingColumns) > 0 {
		parts = append(parts, "missing columns ["+strings.Join(r.MissingColumns, ", ")+"]")
	}
	if len(r.TypeMismatches) > 0 {
		cols := make([]string, len(r.TypeMismatches))
		for i, m := range r.TypeMismatches {
			cols[i] = m.Column
		}
		parts = append(parts, "type mismatches ["+strings.Join(cols, ", ")+"]")
	}
	return fmt.Errorf("%w: dataset %q: %s", failure.ErrSchemaViolation, r.Dataset, strings.Join(parts, "; "))
}
