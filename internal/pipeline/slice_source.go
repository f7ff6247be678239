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

package pipeline

import (
	"context"
	"errors"
	"io"
)

// SliceReader serves an in-memory table. It is used for tests and for
// callers that already hold their rows.
type SliceReader struct {
	schema    *Schema
	data      []Row
	pos       int
	batchSize int
	closed    bool
}

var _ Reader = (*SliceReader)(nil)

// NewSliceReader returns a reader over data. Rows are not copied.
func NewSliceReader(schema *Schema, data []Row, batchSize int) *SliceReader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SliceReader{schema: schema, data: data, batchSize: batchSize}
}

func (s *SliceReader) Next(ctx context.Context) (*Batch, error) {
	if s.closed {
		return nil, errors.New("reader is closed")
	}
	if s.pos >= len(s.data) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := GetBatchSized(s.batchSize)
	upper := min(s.pos+s.batchSize, len(s.data))
	for _, row := range s.data[s.pos:upper] {
		b.Append(row)
	}
	s.pos = upper
	return b, nil
}

func (s *SliceReader) Schema() *Schema { return s.schema }

func (s *SliceReader) RowCount() int64 { return int64(len(s.data)) }

func (s *SliceReader) Close() error {
	s.closed = true
	return nil
}
