// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package sortkey builds row comparators from an ordered list of column
// names. Every key sorts ascending; missing cells sort after present ones.
package sortkey

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// ErrInvalidSortSpec is returned when a sort column does not exist or its
// kind has no ordering.
var ErrInvalidSortSpec = errors.New("invalid sort spec")

// ValueCompare orders two cells of the same kind.
type ValueCompare func(a, b pipeline.Value) int

// compareOptional compares two optional values (value + ok flag)
// Returns: -1 if k < o, 0 if k == o, 1 if k > o
// missing values sort after present values
func compareOptional[T cmp.Ordered](kVal T, kOk bool, oVal T, oOk bool) int {
	if !kOk || !oOk {
		if !kOk && !oOk {
			return 0
		}
		if !kOk {
			return 1
		}
		return -1
	}
	return cmp.Compare(kVal, oVal)
}

func compareInt(a, b pipeline.Value) int {
	return compareOptional(a.Int(), !a.IsMissing(), b.Int(), !b.IsMissing())
}

// compareFloat uses cmp.Compare, so NaN sorts before every other float.
func compareFloat(a, b pipeline.Value) int {
	return compareOptional(a.Float(), !a.IsMissing(), b.Float(), !b.IsMissing())
}

func compareString(a, b pipeline.Value) int {
	return compareOptional(a.Str(), !a.IsMissing(), b.Str(), !b.IsMissing())
}

func compareTime(a, b pipeline.Value) int {
	return compareOptional(a.UnixNano(), !a.IsMissing(), b.UnixNano(), !b.IsMissing())
}

// compareBool orders false before true.
func compareBool(a, b pipeline.Value) int {
	return compareOptional(a.Int(), !a.IsMissing(), b.Int(), !b.IsMissing())
}

// ForKind returns the ordering for cells of kind k. Adding a kind to
// pipeline means adding an arm here.
func ForKind(k pipeline.Kind) (ValueCompare, bool) {
	switch k {
	case pipeline.KindInt:
		return compareInt, true
	case pipeline.KindFloat:
		return compareFloat, true
	case pipeline.KindString:
		return compareString, true
	case pipeline.KindTime:
		return compareTime, true
	case pipeline.KindBool:
		return compareBool, true
	}
	return nil, false
}

type key struct {
	index int
	name  string
	cmp   ValueCompare
}

// Comparator is a total order over rows of one schema. It is read-only after
// Build and safe for concurrent use.
type Comparator struct {
	keys []key
}

// Build resolves columns against schema. It fails with ErrInvalidSortSpec
// when the list is empty, names an unknown column, repeats a column, or
// names a column whose kind has no ordering.
func Build(schema *pipeline.Schema, columns []string) (*Comparator, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: no input schema", ErrInvalidSortSpec)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: at least one sort column is required", ErrInvalidSortSpec)
	}

	keys := make([]key, 0, len(columns))
	seen := make(map[int]bool, len(columns))
	for _, name := range columns {
		idx := schema.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidSortSpec, name)
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: column %q listed twice", ErrInvalidSortSpec, name)
		}
		seen[idx] = true

		kind := schema.Column(idx).Kind
		vc, ok := ForKind(kind)
		if !ok {
			return nil, fmt.Errorf("%w: column %q of kind %s has no ordering", ErrInvalidSortSpec, name, kind)
		}
		keys = append(keys, key{index: idx, name: name, cmp: vc})
	}

	return &Comparator{keys: keys}, nil
}

// Compare orders a before b by the first key, breaking ties with the next
// key, and so on. It returns 0 only when all keys compare equal.
func (c *Comparator) Compare(a, b pipeline.Row) int {
	for _, k := range c.keys {
		if r := k.cmp(a.Cells[k.index], b.Cells[k.index]); r != 0 {
			return r
		}
	}
	return 0
}

// Indices returns the schema positions of the sort columns in key order.
func (c *Comparator) Indices() []int {
	out := make([]int, len(c.keys))
	for i, k := range c.keys {
		out[i] = k.index
	}
	return out
}

// Columns returns the sort column names in key order.
func (c *Comparator) Columns() []string {
	out := make([]string, len(c.keys))
	for i, k := range c.keys {
		out[i] = k.name
	}
	return out
}

// Projected returns the comparator for rows narrowed to the sort columns
// with pipeline.Row.Project(c.Indices()).
func (c *Comparator) Projected() *Comparator {
	keys := make([]key, len(c.keys))
	for i, k := range c.keys {
		keys[i] = key{index: i, name: k.name, cmp: k.cmp}
	}
	return &Comparator{keys: keys}
}

func (c *Comparator) String() string {
	return "asc(" + strings.Join(c.Columns(), ", ") + ")"
}
