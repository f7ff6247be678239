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
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/tablesort/internal/pipeline"
	"github.com/cardinalhq/tablesort/internal/pipeline/wkk"
)

// ParquetSink writes rows as a flat, zstd-compressed Parquet file. Every
// column is optional so missing cells round-trip as nulls; times are stored
// as nanosecond timestamps.
//
// Parquet groups order their fields by name, so the file's column order
// is alphabetical rather than the schema order.
type ParquetSink struct {
	pw        *parquet.Writer
	schema    *pipeline.Schema
	keyColumn string
	names     []string
	row       map[string]any
	closed    bool
}

var _ Sink = (*ParquetSink)(nil)

// ParquetNodeForKind returns the optional parquet node used for cells of
// kind k.
func ParquetNodeForKind(k pipeline.Kind) (parquet.Node, error) {
	enc := func(n parquet.Node) parquet.Node {
		return parquet.Encoded(n, &parquet.RLEDictionary)
	}
	switch k {
	case pipeline.KindInt:
		return parquet.Optional(enc(parquet.Int(64))), nil
	case pipeline.KindFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	case pipeline.KindString:
		return parquet.Optional(enc(parquet.String())), nil
	case pipeline.KindTime:
		return parquet.Optional(parquet.Timestamp(parquet.Nanosecond)), nil
	case pipeline.KindBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType)), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", k)
}

// ParquetSchema builds the file schema for rows of schema with the key in
// keyColumn.
func ParquetSchema(schema *pipeline.Schema, keyColumn string) (*parquet.Schema, error) {
	group := parquet.Group{keyColumn: parquet.String()}
	for _, col := range schema.Columns() {
		name := wkk.ColumnNameValue(col.Name)
		if name == keyColumn {
			return nil, fmt.Errorf("column %q collides with the key column", name)
		}
		node, err := ParquetNodeForKind(col.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		group[name] = node
	}
	return parquet.NewSchema("tablesort", group), nil
}

func NewParquetSink(w io.Writer, schema *pipeline.Schema, opts Options) (*ParquetSink, error) {
	ps, err := ParquetSchema(schema, opts.keyColumn())
	if err != nil {
		return nil, err
	}
	pw := parquet.NewWriter(w,
		ps,
		parquet.Compression(&parquet.Zstd),
		parquet.PageBufferSize(32*1024),
		parquet.MaxRowsPerRowGroup(80_000),
	)
	return &ParquetSink{
		pw:        pw,
		schema:    schema,
		keyColumn: opts.keyColumn(),
		names:     schema.Names(),
		row:       make(map[string]any, schema.Len()+1),
	}, nil
}

func (s *ParquetSink) Consume(_ context.Context, row pipeline.Row) error {
	if row.Len() != s.schema.Len() {
		return fmt.Errorf("row %s has %d cells, schema has %d columns", row.Key, row.Len(), s.schema.Len())
	}
	clear(s.row)
	s.row[s.keyColumn] = string(row.Key)
	for i, cell := range row.Cells {
		if cell.IsMissing() {
			continue
		}
		switch cell.Kind() {
		case pipeline.KindTime:
			s.row[s.names[i]] = cell.UnixNano()
		default:
			s.row[s.names[i]] = cell.Any()
		}
	}
	if err := s.pw.Write(s.row); err != nil {
		return fmt.Errorf("parquet write: %w", err)
	}
	return nil
}

// Done writes the footer. The sink accepts no rows afterwards.
func (s *ParquetSink) Done(context.Context) error {
	return s.Close()
}

func (s *ParquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pw.Close()
}
