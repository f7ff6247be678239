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
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// MemorySpiller keeps encoded chunks in byte buffers. It is used by tests
// and for inputs small enough that disk is not worth touching. With a
// non-zero budget, writes that would hold more than budget bytes across all
// live chunks fail with ErrResourceExhausted.
type MemorySpiller struct {
	codec  Codec
	budget int64
	held   atomic.Int64
	nextID atomic.Int64
	closed atomic.Bool

	counters
}

var _ Spiller = (*MemorySpiller)(nil)

// NewMemorySpiller returns a spiller using codec (CBOR when nil) and a byte
// budget (unlimited when zero).
func NewMemorySpiller(codec Codec, budget int64) (*MemorySpiller, error) {
	if codec == nil {
		c, err := NewCodec(CodecCBOR)
		if err != nil {
			return nil, err
		}
		codec = c
	}
	return &MemorySpiller{codec: codec, budget: budget}, nil
}

// Held returns the bytes currently held by live chunks and open writers.
func (s *MemorySpiller) Held() int64 { return s.held.Load() }

func (s *MemorySpiller) Stats() Stats { return s.snapshot() }

func (s *MemorySpiller) Create(schema *pipeline.Schema) (SpillWriter, error) {
	if s.closed.Load() {
		return nil, errSpillerClosed
	}
	if s.budget > 0 && s.held.Load() >= s.budget {
		exhaustedCounter.Add(context.Background(), 1, backendAttr("memory"))
		return nil, fmt.Errorf("%w: memory budget of %d bytes in use", ErrResourceExhausted, s.budget)
	}
	w := &memorySpillWriter{
		spiller: s,
		schema:  schema,
		name:    "mem-" + strconv.FormatInt(s.nextID.Add(1), 10),
	}
	w.enc = s.codec.newEncoder(&w.buf)
	s.writers.Add(1)
	return w, nil
}

// Close forgets budget accounting. Chunks already sealed stay readable until
// released.
func (s *MemorySpiller) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemorySpiller) open(f *SpillFile) (SpillReader, error) {
	s.readers.Add(1)
	return &memorySpillReader{
		spiller: s,
		chunk:   f,
		dec:     s.codec.newDecoder(bytes.NewReader(f.payload), f.Schema),
	}, nil
}

func (s *MemorySpiller) release(f *SpillFile) error {
	s.released.Add(1)
	s.held.Add(-int64(len(f.payload)))
	f.payload = nil
	chunksReleasedCounter.Add(context.Background(), 1, backendAttr("memory"))
	return nil
}

type memorySpillWriter struct {
	spiller *MemorySpiller
	schema  *pipeline.Schema
	name    string
	buf     bytes.Buffer
	enc     recordEncoder
	rows    int64
	done    bool
}

func (w *memorySpillWriter) Append(rec Record) error {
	if w.done {
		return fmt.Errorf("%w: append to finished chunk %s", ErrChunkState, w.name)
	}
	before := w.buf.Len()
	if err := w.enc.Encode(rec.Seq, rec.Row); err != nil {
		return fmt.Errorf("%w: encode chunk %s: %v", ErrResourceExhausted, w.name, err)
	}
	s := w.spiller
	held := s.held.Add(int64(w.buf.Len() - before))
	if s.budget > 0 && held > s.budget {
		exhaustedCounter.Add(context.Background(), 1, backendAttr("memory"))
		return fmt.Errorf("%w: chunk %s exceeds memory budget of %d bytes", ErrResourceExhausted, w.name, s.budget)
	}
	w.rows++
	return nil
}

func (w *memorySpillWriter) Seal() (*SpillFile, error) {
	if w.done {
		return nil, fmt.Errorf("%w: seal finished chunk %s", ErrChunkState, w.name)
	}
	w.done = true
	s := w.spiller
	s.writers.Add(-1)

	payload := w.buf.Bytes()
	s.created.Add(1)
	s.bytes.Add(int64(len(payload)))
	chunksCreatedCounter.Add(context.Background(), 1, backendAttr("memory"))
	bytesWrittenCounter.Add(context.Background(), int64(len(payload)), backendAttr("memory"))
	return &SpillFile{
		ID:      w.name,
		Rows:    w.rows,
		Bytes:   int64(len(payload)),
		Schema:  w.schema,
		backend: s,
		payload: payload,
	}, nil
}

func (w *memorySpillWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.spiller.writers.Add(-1)
	w.spiller.held.Add(-int64(w.buf.Len()))
	w.buf.Reset()
	return nil
}

type memorySpillReader struct {
	spiller *MemorySpiller
	chunk   *SpillFile
	dec     recordDecoder
	seen    int64
	closed  bool
}

func (r *memorySpillReader) Next() (Record, error) {
	if r.closed {
		return Record{}, fmt.Errorf("%w: read closed chunk %s", ErrChunkState, r.chunk.ID)
	}
	return decodeRecord(r.dec, r.chunk, &r.seen)
}

func (r *memorySpillReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.spiller.readers.Add(-1)
	return nil
}
