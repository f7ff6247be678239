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

// Package pipeline defines the tabular data model shared by readers, the
// external sorter and sinks: typed cells, keyed rows, schemas and pooled
// batches.
//
// Ownership: a Batch is owned by the Reader that returned it and must not be
// used after the next call to Next. The Rows inside a batch are immutable
// and may be retained by the consumer; only the batch slice is recycled.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardinalhq/tablesort/internal/pipeline/wkk"
)

// Reader is a pull-based iterator over Batches in original input order.
// Next returns (nil, io.EOF) when the stream ends.
type Reader interface {
	Next(ctx context.Context) (*Batch, error)

	// Schema describes every row the reader returns.
	Schema() *Schema

	// RowCount returns the total number of rows if known in advance, or -1.
	RowCount() int64

	Close() error
}

// Column is a named, typed column of a Schema.
type Column struct {
	Name wkk.ColumnName
	Kind Kind
}

// NewColumn is a convenience constructor for Column.
func NewColumn(name string, kind Kind) Column {
	return Column{Name: wkk.NewColumnName(name), Kind: kind}
}

func (c Column) String() string {
	return wkk.ColumnNameValue(c.Name) + ":" + c.Kind.String()
}

// Schema is an ordered list of columns. It is immutable after construction.
type Schema struct {
	columns []Column
	index   map[wkk.ColumnName]int
}

// NewSchema builds a schema, rejecting duplicate names and invalid kinds.
func NewSchema(columns ...Column) (*Schema, error) {
	s := &Schema{
		columns: make([]Column, len(columns)),
		index:   make(map[wkk.ColumnName]int, len(columns)),
	}
	for i, c := range columns {
		if c.Kind == KindInvalid {
			return nil, fmt.Errorf("column %q has no kind", wkk.ColumnNameValue(c.Name))
		}
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", wkk.ColumnNameValue(c.Name))
		}
		s.columns[i] = c
		s.index[c.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for fixed schemas in tests and examples.
func MustSchema(columns ...Column) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.columns) }

func (s *Schema) Column(i int) Column { return s.columns[i] }

// Columns returns a copy of the column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Index returns the position of the named column, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[wkk.NewColumnName(name)]; ok {
		return i
	}
	return -1
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = wkk.ColumnNameValue(c.Name)
	}
	return out
}

// Project returns the schema made of the columns at indices, in that order.
func (s *Schema) Project(indices []int) *Schema {
	cols := make([]Column, len(indices))
	for i, idx := range indices {
		cols[i] = s.columns[idx]
	}
	return MustSchema(cols...)
}

// Validate reports whether row has one cell per column with matching kinds.
func (s *Schema) Validate(row Row) error {
	if len(row.Cells) != len(s.columns) {
		return fmt.Errorf("row %q has %d cells, schema has %d columns", row.Key, len(row.Cells), len(s.columns))
	}
	for i, c := range row.Cells {
		if c.IsMissing() {
			continue
		}
		if c.Kind() != s.columns[i].Kind {
			return fmt.Errorf("row %q column %s: got %s cell", row.Key, s.columns[i], c.Kind())
		}
	}
	return nil
}

func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, c := range s.columns {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
