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
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// JSONLinesSink writes one JSON object per row. The key is stored under
// the configured key column name.
type JSONLinesSink struct {
	w       *bufio.Writer
	schema  *pipeline.Schema
	keyName string
	buf     []byte
}

var _ Sink = (*JSONLinesSink)(nil)

func NewJSONLinesSink(w io.Writer, schema *pipeline.Schema, opts Options) *JSONLinesSink {
	return &JSONLinesSink{
		w:       bufio.NewWriterSize(w, 64*1024),
		schema:  schema,
		keyName: opts.keyColumn(),
	}
}

func (s *JSONLinesSink) Consume(_ context.Context, row pipeline.Row) error {
	if row.Len() != s.schema.Len() {
		return fmt.Errorf("row %s has %d cells, schema has %d columns", row.Key, row.Len(), s.schema.Len())
	}
	s.buf = pipeline.AppendRowJSONKeyed(s.buf[:0], s.keyName, s.schema, row)
	s.buf = append(s.buf, '\n')
	_, err := s.w.Write(s.buf)
	return err
}

func (s *JSONLinesSink) Done(context.Context) error { return s.w.Flush() }

func (s *JSONLinesSink) Close() error { return s.w.Flush() }
