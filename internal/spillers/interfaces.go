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

// Package spillers stores sorted chunks outside the Go heap and reads them
// back in order. A chunk is written once through a SpillWriter, sealed into
// a SpillFile, opened for a single forward read, and released.
package spillers

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

var (
	// ErrResourceExhausted is returned when chunk storage cannot be
	// allocated or written: no space, no budget, or a failed create.
	ErrResourceExhausted = errors.New("chunk storage exhausted")

	// ErrCorrupt is returned when a sealed chunk cannot be read back as
	// written.
	ErrCorrupt = errors.New("chunk corrupt")

	// ErrChunkState is returned when a chunk is opened twice or used after
	// release.
	ErrChunkState = errors.New("chunk used out of order")

	errSpillerClosed = errors.New("spiller closed")
)

// Record is one row as stored in a chunk. Seq is the row's input ordinal and
// survives every spill and merge.
type Record struct {
	Seq uint64
	Row pipeline.Row
}

// Spiller allocates chunk storage.
type Spiller interface {
	// Create starts a new chunk for rows of schema.
	Create(schema *pipeline.Schema) (SpillWriter, error)

	// Stats reports resource counters.
	Stats() Stats

	// Close drops any storage still held. Chunks must not be used after.
	Close() error
}

// SpillWriter fills one chunk. Exactly one of Seal or Abort must be called.
type SpillWriter interface {
	// Append adds a record. Records must arrive in the order they should be
	// read back.
	Append(rec Record) error

	// Seal finishes the chunk and hands ownership to the caller.
	Seal() (*SpillFile, error)

	// Abort discards the chunk.
	Abort() error
}

// SpillReader reads a chunk's records in write order.
type SpillReader interface {
	// Next returns the next record, or io.EOF after the last one.
	Next() (Record, error)

	// Close releases the reader. The chunk itself still needs Release.
	Close() error
}

// Stats are point-in-time resource counters for a spiller.
type Stats struct {
	Created      int64 // chunks sealed
	Released     int64 // chunks released
	Live         int64 // sealed and not yet released
	OpenWriters  int64
	OpenReaders  int64
	BytesWritten int64
}

// Leaked reports whether any chunk, writer or reader is still held.
func (s Stats) Leaked() bool {
	return s.Live != 0 || s.OpenWriters != 0 || s.OpenReaders != 0
}

func (s Stats) String() string {
	return fmt.Sprintf("created=%d released=%d live=%d writers=%d readers=%d bytes=%d",
		s.Created, s.Released, s.Live, s.OpenWriters, s.OpenReaders, s.BytesWritten)
}

type counters struct {
	created  atomic.Int64
	released atomic.Int64
	writers  atomic.Int64
	readers  atomic.Int64
	bytes    atomic.Int64
}

func (c *counters) snapshot() Stats {
	created := c.created.Load()
	released := c.released.Load()
	return Stats{
		Created:      created,
		Released:     released,
		Live:         created - released,
		OpenWriters:  c.writers.Load(),
		OpenReaders:  c.readers.Load(),
		BytesWritten: c.bytes.Load(),
	}
}

const (
	chunkSealed int32 = iota
	chunkOpened
	chunkReleased
)

type chunkBackend interface {
	open(f *SpillFile) (SpillReader, error)
	release(f *SpillFile) error
}

// SpillFile is a sealed chunk. It may be opened once and released once;
// further Release calls are no-ops.
type SpillFile struct {
	// ID names the chunk in logs. For file chunks it is the file name.
	ID string

	// Path is the chunk's file, empty for in-memory chunks.
	Path string

	// Rows is the number of records in the chunk.
	Rows int64

	// Bytes is the stored size of the chunk.
	Bytes int64

	Schema *pipeline.Schema

	backend chunkBackend
	state   atomic.Int32
	payload []byte
}

// Open starts the chunk's single read.
func (f *SpillFile) Open() (SpillReader, error) {
	if !f.state.CompareAndSwap(chunkSealed, chunkOpened) {
		return nil, fmt.Errorf("%w: open chunk %s", ErrChunkState, f.ID)
	}
	return f.backend.open(f)
}

// Release frees the chunk's storage.
func (f *SpillFile) Release() error {
	if f.state.Swap(chunkReleased) == chunkReleased {
		return nil
	}
	return f.backend.release(f)
}

// Released reports whether Release has been called.
func (f *SpillFile) Released() bool {
	return f.state.Load() == chunkReleased
}
