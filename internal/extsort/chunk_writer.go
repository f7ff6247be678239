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

package extsort

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/tablesort/internal/logctx"
	"github.com/cardinalhq/tablesort/internal/memoracle"
	"github.com/cardinalhq/tablesort/internal/pipeline"
	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// ChunkWriter buffers records, and when the memory oracle or the row cap
// trips, sorts the buffer and writes it to a new chunk registered with the
// pool. With async set, sorting and writing happen on one background
// goroutine fed through a channel of capacity one; each hand-off moves the
// buffer, so the two sides never share one.
type ChunkWriter struct {
	cmp     *sortkey.Comparator
	schema  *pipeline.Schema
	spiller spillers.Spiller
	oracle  memoracle.Oracle
	pool    *HandlePool
	maxRows int

	buf     []spillers.Record
	created int64

	// async
	parent context.Context
	group  *errgroup.Group
	gctx   context.Context
	queue  chan []spillers.Record
	closed bool
}

type chunkWriterConfig struct {
	cmp     *sortkey.Comparator
	schema  *pipeline.Schema
	spiller spillers.Spiller
	oracle  memoracle.Oracle
	pool    *HandlePool
	maxRows int
	async   bool
}

func newChunkWriter(ctx context.Context, cfg chunkWriterConfig) *ChunkWriter {
	w := &ChunkWriter{
		cmp:     cfg.cmp,
		schema:  cfg.schema,
		spiller: cfg.spiller,
		oracle:  cfg.oracle,
		pool:    cfg.pool,
		maxRows: cfg.maxRows,
		buf:     make([]spillers.Record, 0, min(cfg.maxRows, 4096)),
	}
	if w.oracle == nil {
		w.oracle = memoracle.Never
	}
	if cfg.async {
		w.parent = ctx
		w.group, w.gctx = errgroup.WithContext(ctx)
		w.queue = make(chan []spillers.Record, 1)
		w.group.Go(func() error {
			for buf := range w.queue {
				if err := w.gctx.Err(); err != nil {
					return err
				}
				if err := w.writeChunk(w.gctx, buf); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return w
}

// Created is the number of chunks written from the buffer.
func (w *ChunkWriter) Created() int64 { return w.created }

// Add buffers rec and spills when the oracle or the row cap says so.
func (w *ChunkWriter) Add(ctx context.Context, rec spillers.Record) error {
	w.buf = append(w.buf, rec)
	if len(w.buf) >= w.maxRows || w.oracle.ShouldSpill() {
		return w.Flush(ctx)
	}
	return nil
}

// Flush spills the buffer now. An empty buffer is a no-op.
func (w *ChunkWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	buf := w.buf
	if w.queue == nil {
		err := w.writeChunk(ctx, buf)
		w.buf = buf[:0]
		clear(buf[:cap(buf)])
		return err
	}

	w.buf = make([]spillers.Record, 0, cap(buf))
	select {
	case w.queue <- buf:
		return nil
	case <-w.gctx.Done():
		return w.wait()
	}
}

// Close spills what is left and waits for background writes. After Close
// every chunk is in the pool.
func (w *ChunkWriter) Close(ctx context.Context) error {
	if err := w.Flush(ctx); err != nil {
		return w.abortWith(err)
	}
	return w.wait()
}

// Abort stops background writes and drops buffered rows. Chunks already in
// the pool stay there.
func (w *ChunkWriter) Abort() {
	w.buf = nil
	_ = w.wait()
}

func (w *ChunkWriter) abortWith(err error) error {
	w.Abort()
	return err
}

func (w *ChunkWriter) wait() error {
	if w.queue == nil {
		return nil
	}
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	if err := w.group.Wait(); err != nil {
		return asCancelled(w.parent, err)
	}
	// A clean exit after the parent was cancelled may have skipped buffers.
	if w.parent.Err() != nil {
		return cancelledError(w.parent)
	}
	return nil
}

// writeChunk sorts buf and writes it as one chunk.
func (w *ChunkWriter) writeChunk(ctx context.Context, buf []spillers.Record) error {
	start := time.Now()
	slices.SortFunc(buf, func(a, b spillers.Record) int {
		if c := w.cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})

	if err := w.pool.Reserve(ctx); err != nil {
		return err
	}

	sw, err := w.spiller.Create(w.schema)
	if err != nil {
		return fmt.Errorf("create chunk: %w", err)
	}
	for _, rec := range buf {
		if err := sw.Append(rec); err != nil {
			_ = sw.Abort()
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	chunk, err := sw.Seal()
	if err != nil {
		return fmt.Errorf("seal chunk: %w", err)
	}
	if err := w.pool.Register(chunk); err != nil {
		return err
	}
	w.created++
	chunksSpilledCounter.Add(ctx, 1)
	if r, ok := w.oracle.(memoracle.Resetter); ok {
		r.Reset()
	}

	logctx.FromContext(ctx).Debug("Spilled chunk",
		slog.String("chunk", chunk.ID),
		slog.Int64("rows", chunk.Rows),
		slog.Int64("bytes", chunk.Bytes),
		slog.Int("open", w.pool.Open()),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
