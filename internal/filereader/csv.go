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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

var csvReaderAttr = otelmetric.WithAttributes(attribute.String("reader", "CSVReader"))

// CSVReader reads rows from a CSV stream with a header row. Empty fields
// are missing cells. Records whose field count differs from the header
// are dropped.
type CSVReader struct {
	reader    *csv.Reader
	closer    io.Closer
	schema    *pipeline.Schema
	fields    int
	keyIndex  int   // -1 when rows get ordinal keys
	cellIndex []int // record field for each schema column
	batchSize int
	rowCount  int64
	rowIndex  int64 // records accepted so far
	line      int
	closed    bool
}

var _ pipeline.Reader = (*CSVReader)(nil)

func newCSV(r io.Reader) *csv.Reader {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	csvReader.ReuseRecord = true
	return csvReader
}

// NewCSVReader creates a CSVReader for reader and takes ownership of it.
//
// If reader implements io.Seeker, the whole stream is scanned once to infer
// column kinds and count rows, then rewound. Otherwise every column not
// named in opts.Types is a string column and the row count is unknown.
func NewCSVReader(reader io.ReadCloser, opts Options) (*CSVReader, error) {
	r, err := newCSVReader(reader, opts)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	return r, nil
}

func newCSVReader(reader io.ReadCloser, opts Options) (*CSVReader, error) {
	csvReader := newCSV(reader)
	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	headers := append([]string(nil), header...)
	if len(headers) == 0 {
		return nil, errors.New("CSV file has no headers")
	}

	keyIndex := -1
	if opts.KeyColumn != "" {
		for i, h := range headers {
			if h == opts.KeyColumn {
				keyIndex = i
				break
			}
		}
		if keyIndex < 0 {
			return nil, fmt.Errorf("key column %q not in CSV header", opts.KeyColumn)
		}
	}

	rowCount := int64(-1)
	kinds := make([]pipeline.Kind, len(headers))
	for i := range kinds {
		kinds[i] = pipeline.KindString
	}

	if seeker, ok := reader.(io.Seeker); ok {
		tracker := newKindTracker(len(headers))
		rowCount = 0
		for {
			record, err := csvReader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to infer CSV schema: %w", err)
			}
			if len(record) != len(headers) {
				continue
			}
			tracker.observe(record)
			rowCount++
		}
		kinds = tracker.result()

		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to reset reader after schema inference: %w", err)
		}
		csvReader = newCSV(reader)
		if _, err := csvReader.Read(); err != nil {
			return nil, fmt.Errorf("failed to re-read headers after reset: %w", err)
		}
	}

	columns := make([]pipeline.Column, 0, len(headers))
	cellIndex := make([]int, 0, len(headers))
	for i, h := range headers {
		if i == keyIndex {
			continue
		}
		kind := kinds[i]
		if forced, ok := opts.Types[h]; ok {
			kind = forced
		}
		columns = append(columns, pipeline.NewColumn(h, kind))
		cellIndex = append(cellIndex, i)
	}
	for name := range opts.Types {
		if !slices.Contains(headers, name) {
			return nil, fmt.Errorf("type override for unknown column %q", name)
		}
	}
	schema, err := pipeline.NewSchema(columns...)
	if err != nil {
		return nil, fmt.Errorf("CSV header: %w", err)
	}

	return &CSVReader{
		reader:    csvReader,
		closer:    reader,
		schema:    schema,
		fields:    len(headers),
		keyIndex:  keyIndex,
		cellIndex: cellIndex,
		batchSize: opts.batchSize(),
		rowCount:  rowCount,
		line:      1,
	}, nil
}

func (r *CSVReader) Schema() *pipeline.Schema { return r.schema }

// RowCount is the number of rows found by the inference scan, or -1.
func (r *CSVReader) RowCount() int64 { return r.rowCount }

func (r *CSVReader) Next(ctx context.Context) (*pipeline.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := pipeline.GetBatchSized(r.batchSize)
	for batch.Len() < r.batchSize {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		r.line++
		if err != nil {
			pipeline.ReturnBatch(batch)
			return nil, fmt.Errorf("CSV read error at line %d: %w", r.line, err)
		}
		rowsInCounter.Add(ctx, 1, csvReaderAttr)

		if len(record) != r.fields {
			rowsDroppedCounter.Add(ctx, 1, otelmetric.WithAttributes(
				attribute.String("reader", "CSVReader"),
				attribute.String("reason", "column_count_mismatch"),
			))
			continue
		}

		row, err := r.convert(record)
		if err != nil {
			pipeline.ReturnBatch(batch)
			return nil, fmt.Errorf("CSV line %d: %w", r.line, err)
		}
		batch.Append(row)
		r.rowIndex++
	}

	if batch.Len() == 0 {
		pipeline.ReturnBatch(batch)
		return nil, io.EOF
	}
	rowsOutCounter.Add(ctx, int64(batch.Len()), csvReaderAttr)
	return batch, nil
}

func (r *CSVReader) convert(record []string) (pipeline.Row, error) {
	key := ordinalKey(r.rowIndex)
	if r.keyIndex >= 0 {
		key = pipeline.RowKey(record[r.keyIndex])
	}
	cells := make([]pipeline.Value, len(r.cellIndex))
	for i, field := range r.cellIndex {
		col := r.schema.Column(i)
		v, err := pipeline.ParseValue(col.Kind, record[field])
		if err != nil {
			return pipeline.Row{}, fmt.Errorf("column %s: %w", col, err)
		}
		cells[i] = v
	}
	return pipeline.NewRow(key, cells...), nil
}

// Close closes the underlying stream.
func (r *CSVReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}
