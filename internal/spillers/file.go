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

package spillers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cardinalhq/tablesort/internal/helpers"
	"github.com/cardinalhq/tablesort/internal/idgen"
	"github.com/cardinalhq/tablesort/internal/pipeline"
)

const fileBufferSize = 64 << 10

// FileSpiller writes each chunk to its own zstd-compressed file inside a
// directory owned by one sort.
type FileSpiller struct {
	dir       string
	codec     Codec
	level     zstd.EncoderLevel
	minFree   uint64
	diskUsage helpers.DiskUsageFunc
	ids       *idgen.ULIDGenerator
	closed    atomic.Bool

	counters
}

var _ Spiller = (*FileSpiller)(nil)

// FileOption configures a FileSpiller.
type FileOption func(*FileSpiller)

// WithCodec selects the record codec. The default is CBOR.
func WithCodec(c Codec) FileOption {
	return func(s *FileSpiller) { s.codec = c }
}

// WithMinFreeBytes refuses new chunks while the spill filesystem has fewer
// than n bytes available. Zero disables the check.
func WithMinFreeBytes(n uint64) FileOption {
	return func(s *FileSpiller) { s.minFree = n }
}

// WithDiskUsageFunc replaces the free-space check used by WithMinFreeBytes.
func WithDiskUsageFunc(f helpers.DiskUsageFunc) FileOption {
	return func(s *FileSpiller) { s.diskUsage = f }
}

// WithCompressionLevel sets the zstd level for chunk files.
func WithCompressionLevel(level zstd.EncoderLevel) FileOption {
	return func(s *FileSpiller) { s.level = level }
}

// NewFileSpiller creates a fresh spill directory under baseDir, or under the
// system temp dir when baseDir is empty.
func NewFileSpiller(baseDir string, opts ...FileOption) (*FileSpiller, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	s := &FileSpiller{
		dir:       filepath.Join(baseDir, idgen.NewSpillDirName()),
		level:     zstd.SpeedFastest,
		diskUsage: helpers.DiskUsage,
		ids:       idgen.NewULIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		c, err := NewCodec(CodecCBOR)
		if err != nil {
			return nil, err
		}
		s.codec = c
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create spill dir: %v", ErrResourceExhausted, err)
	}
	return s, nil
}

// Dir returns the spill directory.
func (s *FileSpiller) Dir() string { return s.dir }

// Stats reports resource counters.
func (s *FileSpiller) Stats() Stats { return s.snapshot() }

func (s *FileSpiller) exhausted(format string, args ...any) error {
	exhaustedCounter.Add(context.Background(), 1, backendAttr("file"))
	return fmt.Errorf("%w: %s", ErrResourceExhausted, fmt.Sprintf(format, args...))
}

// Create opens a new chunk file.
func (s *FileSpiller) Create(schema *pipeline.Schema) (SpillWriter, error) {
	if s.closed.Load() {
		return nil, errSpillerClosed
	}
	if s.minFree > 0 {
		usage, err := s.diskUsage(s.dir)
		if err != nil {
			return nil, s.exhausted("stat spill dir %s: %v", s.dir, err)
		}
		if usage.FreeBytes < s.minFree {
			return nil, s.exhausted("%d bytes free in %s, need %d", usage.FreeBytes, s.dir, s.minFree)
		}
	}

	name := idgen.ChunkFileName(s.ids, time.Now(), s.codec.Name()+".zst")
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, s.exhausted("create chunk %s: %v", name, err)
	}

	w := &fileSpillWriter{
		spiller: s,
		schema:  schema,
		name:    name,
		path:    path,
		file:    f,
		counted: &countingWriter{w: f},
	}
	w.buf = bufio.NewWriterSize(w.counted, fileBufferSize)
	w.zw = getEncoder(s.level, w.buf)
	w.enc = s.codec.newEncoder(w.zw)
	s.writers.Add(1)
	return w, nil
}

// Close removes the spill directory and every chunk left in it.
func (s *FileSpiller) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return os.RemoveAll(s.dir)
}

func (s *FileSpiller) open(f *SpillFile) (SpillReader, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open chunk %s: %v", ErrCorrupt, f.ID, err)
	}
	zr, err := newDecoder(bufio.NewReaderSize(file, fileBufferSize))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: chunk %s: %v", ErrCorrupt, f.ID, err)
	}
	s.readers.Add(1)
	return &fileSpillReader{
		spiller: s,
		chunk:   f,
		file:    file,
		zr:      zr,
		dec:     s.codec.newDecoder(zr, f.Schema),
	}, nil
}

func (s *FileSpiller) release(f *SpillFile) error {
	s.released.Add(1)
	chunksReleasedCounter.Add(context.Background(), 1, backendAttr("file"))
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove chunk %s: %w", f.ID, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type fileSpillWriter struct {
	spiller *FileSpiller
	schema  *pipeline.Schema
	name    string
	path    string
	file    *os.File
	counted *countingWriter
	buf     *bufio.Writer
	zw      *zstd.Encoder
	enc     recordEncoder
	rows    int64
	done    bool
}

func (w *fileSpillWriter) Append(rec Record) error {
	if w.done {
		return fmt.Errorf("%w: append to finished chunk %s", ErrChunkState, w.name)
	}
	if err := w.enc.Encode(rec.Seq, rec.Row); err != nil {
		return fmt.Errorf("%w: write chunk %s: %v", ErrResourceExhausted, w.name, err)
	}
	w.rows++
	return nil
}

func (w *fileSpillWriter) Seal() (*SpillFile, error) {
	if w.done {
		return nil, fmt.Errorf("%w: seal finished chunk %s", ErrChunkState, w.name)
	}
	w.done = true
	s := w.spiller
	s.writers.Add(-1)

	err := w.zw.Close()
	putEncoder(s.level, w.zw)
	w.zw = nil
	if err == nil {
		err = w.buf.Flush()
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(w.path)
		return nil, s.exhausted("seal chunk %s: %v", w.name, err)
	}

	s.created.Add(1)
	s.bytes.Add(w.counted.n)
	chunksCreatedCounter.Add(context.Background(), 1, backendAttr("file"))
	bytesWrittenCounter.Add(context.Background(), w.counted.n, backendAttr("file"))
	return &SpillFile{
		ID:      w.name,
		Path:    w.path,
		Rows:    w.rows,
		Bytes:   w.counted.n,
		Schema:  w.schema,
		backend: s,
	}, nil
}

func (w *fileSpillWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.spiller.writers.Add(-1)
	_ = w.zw.Close()
	putEncoder(w.spiller.level, w.zw)
	w.zw = nil
	_ = w.file.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove aborted chunk %s: %w", w.name, err)
	}
	return nil
}

type fileSpillReader struct {
	spiller *FileSpiller
	chunk   *SpillFile
	file    *os.File
	zr      *zstd.Decoder
	dec     recordDecoder
	seen    int64
	closed  bool
}

func (r *fileSpillReader) Next() (Record, error) {
	if r.closed {
		return Record{}, fmt.Errorf("%w: read closed chunk %s", ErrChunkState, r.chunk.ID)
	}
	return decodeRecord(r.dec, r.chunk, &r.seen)
}

func (r *fileSpillReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.spiller.readers.Add(-1)
	r.zr.Close()
	return r.file.Close()
}
