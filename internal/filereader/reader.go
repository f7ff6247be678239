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

// Package filereader turns table files into pipeline.Readers. The format is
// chosen from the file name: .csv and .csv.gz are read as CSV with a header
// row, .parquet as Parquet.
package filereader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// ErrUnsupportedFormat is returned by Open for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 1000

// Options controls how a file is turned into rows.
type Options struct {
	// BatchSize is the number of rows per batch.
	BatchSize int

	// KeyColumn names the column carried as the row key instead of a
	// cell. When empty, rows are keyed "Row0", "Row1", ... in file order.
	KeyColumn string

	// Types forces the kind of the named columns. CSV columns not listed
	// are inferred; Parquet columns must agree with the file's types.
	Types map[string]pipeline.Kind
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// ParseTypes parses "column=kind" pairs as given on the command line.
func ParseTypes(pairs []string) (map[string]pipeline.Kind, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]pipeline.Kind, len(pairs))
	for _, p := range pairs {
		name, kindName, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("type override %q is not column=kind", p)
		}
		kind, err := pipeline.ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("type override %q: %w", p, err)
		}
		out[name] = kind
	}
	return out, nil
}

// ordinalKey is the key given to the i-th row of a file without a key column.
func ordinalKey(i int64) pipeline.RowKey {
	return pipeline.RowKey("Row" + strconv.FormatInt(i, 10))
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open returns a reader for filename based on its extension. The reader
// owns the file and closes it on Close.
func Open(filename string, opts Options) (pipeline.Reader, error) {
	switch {
	case strings.HasSuffix(filename, ".parquet"):
		return openParquet(filename, opts)
	case strings.HasSuffix(filename, ".csv.gz"):
		return openCSVGz(filename, opts)
	case strings.HasSuffix(filename, ".csv"):
		file, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV file: %w", err)
		}
		return NewCSVReader(file, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

func openCSVGz(filename string, opts Options) (pipeline.Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	return NewCSVReader(&multiReadCloser{
		Reader:  gzipReader,
		closers: []io.Closer{gzipReader, file},
	}, opts)
}

func openParquet(filename string, opts Options) (pipeline.Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}
	r, err := NewParquetReader(file, stat.Size(), opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}
