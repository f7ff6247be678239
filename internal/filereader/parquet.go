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

package filereader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

var parquetReaderAttr = otelmetric.WithAttributes(attribute.String("reader", "ParquetReader"))

// ParquetReader reads the top-level leaf columns of a Parquet file.
// Nested groups are rejected; null values are missing cells.
type ParquetReader struct {
	pf        *parquet.File
	pfr       *parquet.GenericReader[map[string]any]
	closer    io.Closer
	schema    *pipeline.Schema
	names     []string        // file column name per schema column
	timeScale []time.Duration // per schema column, for integer timestamps
	keyColumn string
	batchSize int
	rowIndex  int64
	readBuf   []map[string]any
	closed    bool
	exhausted bool
}

var _ pipeline.Reader = (*ParquetReader)(nil)

// NewParquetReader opens the Parquet data in reader.
func NewParquetReader(reader io.ReaderAt, size int64, opts Options) (*ParquetReader, error) {
	pf, err := parquet.OpenFile(reader, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	r := &ParquetReader{
		pf:        pf,
		keyColumn: opts.KeyColumn,
		batchSize: opts.batchSize(),
	}

	var columns []pipeline.Column
	keyFound := false
	for _, field := range pf.Schema().Fields() {
		name := field.Name()
		if !field.Leaf() {
			return nil, fmt.Errorf("parquet column %q is a group; only flat files can be sorted", name)
		}
		if field.Repeated() {
			return nil, fmt.Errorf("parquet column %q is repeated; only flat files can be sorted", name)
		}
		if name == opts.KeyColumn {
			keyFound = true
			continue
		}
		kind, scale := parquetKind(field.Type())
		if forced, ok := opts.Types[name]; ok {
			if forced != kind && !(forced == pipeline.KindFloat && kind == pipeline.KindInt) {
				return nil, fmt.Errorf("parquet column %q holds %s, cannot read as %s", name, kind, forced)
			}
			kind = forced
		}
		if kind == pipeline.KindInvalid {
			return nil, fmt.Errorf("parquet column %q has unsupported type %s", name, field.Type())
		}
		columns = append(columns, pipeline.NewColumn(name, kind))
		r.names = append(r.names, name)
		r.timeScale = append(r.timeScale, scale)
	}
	if opts.KeyColumn != "" && !keyFound {
		return nil, fmt.Errorf("key column %q not in parquet schema", opts.KeyColumn)
	}

	r.schema, err = pipeline.NewSchema(columns...)
	if err != nil {
		return nil, fmt.Errorf("parquet schema: %w", err)
	}

	r.pfr = parquet.NewGenericReader[map[string]any](pf, pf.Schema())
	r.readBuf = make([]map[string]any, r.batchSize)
	for i := range r.readBuf {
		r.readBuf[i] = make(map[string]any)
	}
	return r, nil
}

// parquetKind maps a leaf type to a cell kind. Integer timestamps come with
// the duration of one stored unit.
func parquetKind(t parquet.Type) (pipeline.Kind, time.Duration) {
	if lt := t.LogicalType(); lt != nil {
		if ts := lt.Timestamp; ts != nil {
			switch {
			case ts.Unit.Millis != nil:
				return pipeline.KindTime, time.Millisecond
			case ts.Unit.Micros != nil:
				return pipeline.KindTime, time.Microsecond
			default:
				return pipeline.KindTime, time.Nanosecond
			}
		}
	}

	switch t.Kind() {
	case parquet.Boolean:
		return pipeline.KindBool, 0
	case parquet.Int32, parquet.Int64:
		return pipeline.KindInt, 0
	case parquet.Float, parquet.Double:
		return pipeline.KindFloat, 0
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return pipeline.KindString, 0
	default:
		return pipeline.KindInvalid, 0
	}
}

func (r *ParquetReader) Schema() *pipeline.Schema { return r.schema }

// RowCount comes from the file footer.
func (r *ParquetReader) RowCount() int64 { return r.pf.NumRows() }

// Next returns the next batch of rows from the parquet file.
func (r *ParquetReader) Next(ctx context.Context) (*pipeline.Batch, error) {
	if r.closed || r.pfr == nil {
		return nil, errors.New("reader is closed or not initialized")
	}
	if r.exhausted {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, m := range r.readBuf {
		clear(m)
	}

	n, err := r.pfr.Read(r.readBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parquet reader error: %w", err)
	}
	if errors.Is(err, io.EOF) {
		r.exhausted = true
	}
	if n == 0 {
		r.exhausted = true
		return nil, io.EOF
	}
	rowsInCounter.Add(ctx, int64(n), parquetReaderAttr)

	batch := pipeline.GetBatchSized(r.batchSize)
	for i := range n {
		row, err := r.convert(r.readBuf[i])
		if err != nil {
			pipeline.ReturnBatch(batch)
			return nil, fmt.Errorf("parquet row %d: %w", r.rowIndex, err)
		}
		batch.Append(row)
		r.rowIndex++
	}

	rowsOutCounter.Add(ctx, int64(n), parquetReaderAttr)
	return batch, nil
}

func (r *ParquetReader) convert(m map[string]any) (pipeline.Row, error) {
	key := ordinalKey(r.rowIndex)
	if r.keyColumn != "" {
		switch raw := m[r.keyColumn].(type) {
		case nil:
		case []byte:
			key = pipeline.RowKey(raw)
		default:
			key = pipeline.RowKey(fmt.Sprint(raw))
		}
	}

	cells := make([]pipeline.Value, len(r.names))
	for i, name := range r.names {
		kind := r.schema.Column(i).Kind
		raw := m[name]
		if n, ok := raw.(int64); ok && kind == pipeline.KindTime {
			raw = time.Unix(0, n*int64(r.timeScale[i]))
		}
		v, err := pipeline.Coerce(kind, raw)
		if err != nil {
			return pipeline.Row{}, fmt.Errorf("column %s: %w", name, err)
		}
		cells[i] = v
	}
	return pipeline.NewRow(key, cells...), nil
}

// Close releases the parquet reader and, when opened by Open, the file.
func (r *ParquetReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.pfr != nil {
		if cerr := r.pfr.Close(); cerr != nil {
			err = fmt.Errorf("failed to close parquet reader: %w", cerr)
		}
		r.pfr = nil
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}
