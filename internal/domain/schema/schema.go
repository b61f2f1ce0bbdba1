// Package schema loads the declarative column contract that gates data quality.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type is a declared column type.
type Type string

// Supported column types.
const (
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeString Type = "string"
	TypeBool   Type = "bool"
)

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	switch t {
	case TypeInt, TypeFloat, TypeString, TypeBool:
		return true
	}
	return false
}

// Numeric reports whether values of t are carried as float64.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeBool
}

// Accepts reports whether a column inferred as actual satisfies the declared type.
// Integers widen to float; every other type must match exactly.
func (t Type) Accepts(actual Type) bool {
	if t == actual {
		return true
	}
	return t == TypeFloat && actual == TypeInt
}

// Column is one declared column.
type Column struct {
	Name     string `yaml:"name"`
	Type     Type   `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

// Contract is the immutable schema contract for a dataset.
type Contract struct {
	columns []Column
	index   map[string]int
	target  string
	drop    []string
}

type document struct {
	Columns []Column `yaml:"columns"`
	Target  string   `yaml:"target"`
	Drop    []string `yaml:"drop"`
}

// Load reads and parses a schema file.
func Load(path string) (*Contract, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML schema document. Unknown keys are rejected.
func Parse(b []byte) (*Contract, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return New(doc.Columns, doc.Target, doc.Drop)
}

// New validates and builds a Contract.
func New(columns []Column, target string, drop []string) (*Contract, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns declared", ErrInvalid)
	}
	c := &Contract{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		target:  strings.TrimSpace(target),
	}
	for _, col := range columns {
		col.Name = strings.TrimSpace(col.Name)
		col.Type = Type(strings.ToLower(string(col.Type)))
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column with empty name", ErrInvalid)
		}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("%w: column %q has unknown type %q", ErrInvalid, col.Name, col.Type)
		}
		if _, dup := c.index[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalid, col.Name)
		}
		c.index[col.Name] = len(c.columns)
		c.columns = append(c.columns, col)
	}
	if c.target == "" {
		return nil, fmt.Errorf("%w: target column is required", ErrInvalid)
	}
	tc, ok := c.Column(c.target)
	if !ok {
		return nil, fmt.Errorf("%w: target %q is not a declared column", ErrInvalid, c.target)
	}
	if !tc.Type.Numeric() {
		return nil, fmt.Errorf("%w: target %q must be numeric, got %s", ErrInvalid, c.target, tc.Type)
	}
	seen := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		d = strings.TrimSpace(d)
		if d == c.target {
			return nil, fmt.Errorf("%w: target %q cannot be dropped", ErrInvalid, d)
		}
		if _, dup := seen[d]; dup || d == "" {
			continue
		}
		seen[d] = struct{}{}
		c.drop = append(c.drop, d)
	}
	return c, nil
}

// Columns returns a copy of the declared columns in order.
func (c *Contract) Columns() []Column {
	out := make([]Column, len(c.columns))
	copy(out, c.columns)
	return out
}

// Names returns the declared column names in order.
func (c *Contract) Names() []string {
	out := make([]string, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Name
	}
	return out
}

// Column looks up a declared column.
func (c *Contract) Column(name string) (Column, bool) {
	i, ok := c.index[name]
	if !ok {
		return Column{}, false
	}
	return c.columns[i], true
}

// Target returns the target column name.
func (c *Contract) Target() string { return c.target }

// Drop returns a copy of the columns excluded from features.
func (c *Contract) Drop() []string {
	out := make([]string, len(c.drop))
	copy(out, c.drop)
	return out
}

// Dropped reports whether name is on the drop list.
func (c *Contract) Dropped(name string) bool {
	for _, d := range c.drop {
		if d == name {
			return true
		}
	}
	return false
}

// Features returns the declared columns used as model inputs: everything
// except the target and the drop list, in declaration order.
func (c *Contract) Features() []Column {
	out := make([]Column, 0, len(c.columns))
	for _, col := range c.columns {
		if col.Name == c.target || c.Dropped(col.Name) {
			continue
		}
		out = append(out, col)
	}
	return out
}
