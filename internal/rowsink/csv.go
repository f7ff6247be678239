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

package rowsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// CSVSink writes a header row followed by one record per row. The key is
// the first field; missing cells are empty fields.
type CSVSink struct {
	w           *csv.Writer
	schema      *pipeline.Schema
	keyColumn   string
	record      []string
	wroteHeader bool
}

var _ Sink = (*CSVSink)(nil)

func NewCSVSink(w io.Writer, schema *pipeline.Schema, opts Options) *CSVSink {
	return &CSVSink{
		w:         csv.NewWriter(w),
		schema:    schema,
		keyColumn: opts.keyColumn(),
		record:    make([]string, schema.Len()+1),
	}
}

func (s *CSVSink) header() error {
	s.wroteHeader = true
	s.record[0] = s.keyColumn
	copy(s.record[1:], s.schema.Names())
	return s.w.Write(s.record)
}

func (s *CSVSink) Consume(_ context.Context, row pipeline.Row) error {
	if !s.wroteHeader {
		if err := s.header(); err != nil {
			return err
		}
	}
	if row.Len() != s.schema.Len() {
		return fmt.Errorf("row %s has %d cells, schema has %d columns", row.Key, row.Len(), s.schema.Len())
	}
	s.record[0] = string(row.Key)
	for i, cell := range row.Cells {
		s.record[i+1] = cell.String()
	}
	return s.w.Write(s.record)
}

// Done writes the header if no row arrived and flushes.
func (s *CSVSink) Done(context.Context) error {
	if !s.wroteHeader {
		if err := s.header(); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	return s.w.Error()
}
