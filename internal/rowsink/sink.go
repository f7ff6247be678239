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

// Package rowsink holds the destinations for sorted rows: CSV, JSON lines
// and Parquet files, plus in-memory sinks for tests and dry runs.
package rowsink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// Sink receives rows in order. Done is called once after the last row;
// Close releases the destination and is safe to call more than once.
type Sink interface {
	Consume(ctx context.Context, row pipeline.Row) error
	Done(ctx context.Context) error
	Close() error
}

// Format names an output encoding.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSONLines Format = "jsonl"
	FormatParquet   Format = "parquet"
)

// ErrUnsupportedFormat is returned for unknown formats or file extensions.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// DefaultKeyColumn is the column name used for row keys in output files.
const DefaultKeyColumn = "RowID"

// Options controls how rows are written.
type Options struct {
	// KeyColumn is the name of the row key column. Empty means
	// DefaultKeyColumn.
	KeyColumn string
}

func (o Options) keyColumn() string {
	if o.KeyColumn == "" {
		return DefaultKeyColumn
	}
	return o.KeyColumn
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "json", "ndjson":
		return FormatJSONLines, nil
	case "parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatForFile picks the format from a file name. A trailing .gz is
// ignored; the second result reports whether it was present.
func FormatForFile(filename string) (Format, bool, error) {
	name := strings.ToLower(filename)
	gz := strings.HasSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".gz")
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	f, err := ParseFormat(name[dot:])
	if err != nil {
		return "", false, err
	}
	if gz && f == FormatParquet {
		return "", false, fmt.Errorf("%w: parquet files are compressed internally", ErrUnsupportedFormat)
	}
	return f, gz, nil
}

// New returns a sink writing format to w. The sink does not close w.
func New(w io.Writer, format Format, schema *pipeline.Schema, opts Options) (Sink, error) {
	switch format {
	case FormatCSV:
		return NewCSVSink(w, schema, opts), nil
	case FormatJSONLines:
		return NewJSONLinesSink(w, schema, opts), nil
	case FormatParquet:
		return NewParquetSink(w, schema, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Create creates filename and returns a sink for it, choosing the format
// from the extension. Files ending in .gz are gzip-compressed. Closing the
// sink closes the file.
func Create(filename string, schema *pipeline.Schema, opts Options) (Sink, error) {
	format, gz, err := FormatForFile(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	var w io.Writer = file
	closers := []io.Closer{file}
	if gz {
		zw := gzip.NewWriter(file)
		w = zw
		closers = []io.Closer{zw, file}
	}

	sink, err := New(w, format, schema, opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &closingSink{Sink: sink, closers: closers}, nil
}

// closingSink closes the files under a sink after the sink itself.
type closingSink struct {
	Sink
	closers []io.Closer
	closed  bool
}

func (c *closingSink) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.Sink.Close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
