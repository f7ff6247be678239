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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/tablesort/internal/logctx"
	"github.com/cardinalhq/tablesort/internal/pipeline"
	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// HandlePool holds sealed chunks and keeps their number at or below
// maxOpen. Before a new chunk is written, Reserve merges the oldest chunks
// into one when the pool is full, so the new chunk never pushes the count
// past the cap. Chunks being drained by that merge still count as open.
//
// A HandlePool is owned by one goroutine at a time.
type HandlePool struct {
	maxOpen       int
	consolidateTo int
	cmp           *sortkey.Comparator
	schema        *pipeline.Schema
	spiller       spillers.Spiller
	cancel        cancelCheck
	interval      int

	// onConsolidate is called around each pass with the number of chunks
	// being merged; done is false before the pass and true after.
	onConsolidate func(inputs, open int, done bool)

	chunks   []*spillers.SpillFile
	draining int
	peak     int
	passes   int
	merged   int
}

type poolConfig struct {
	maxOpen       int
	consolidateTo int
	cmp           *sortkey.Comparator
	schema        *pipeline.Schema
	spiller       spillers.Spiller
	cancel        cancelCheck
	interval      int
	onConsolidate func(inputs, open int, done bool)
}

func newHandlePool(cfg poolConfig) *HandlePool {
	if cfg.cancel == nil {
		cfg.cancel = func() error { return nil }
	}
	return &HandlePool{
		maxOpen:       cfg.maxOpen,
		consolidateTo: cfg.consolidateTo,
		cmp:           cfg.cmp,
		schema:        cfg.schema,
		spiller:       cfg.spiller,
		cancel:        cfg.cancel,
		interval:      cfg.interval,
		onConsolidate: cfg.onConsolidate,
	}
}

// Len is the number of chunks held.
func (p *HandlePool) Len() int { return len(p.chunks) }

// Open is the number of chunk resources held, counting chunks being drained.
func (p *HandlePool) Open() int { return len(p.chunks) + p.draining }

// Peak is the most chunks ever open at once. It counts held and draining
// chunks. The writer for a consolidation's output is not counted until it
// is sealed, so with ConsolidateTo 1 a pass briefly holds maxOpen readers
// plus that writer.
func (p *HandlePool) Peak() int { return p.peak }

// Passes is the number of consolidation passes run.
func (p *HandlePool) Passes() int { return p.passes }

// Consolidated is the number of input chunks consumed by consolidation.
func (p *HandlePool) Consolidated() int { return p.merged }

func (p *HandlePool) notePeak() {
	if open := p.Open(); open > p.peak {
		p.peak = open
	}
}

// Reserve makes room for one more chunk.
func (p *HandlePool) Reserve(ctx context.Context) error {
	if len(p.chunks) < p.maxOpen {
		return nil
	}
	return p.consolidate(ctx)
}

// Register takes ownership of a sealed chunk. Reserve must have been called
// first; a full pool rejects the chunk and releases it.
func (p *HandlePool) Register(chunk *spillers.SpillFile) error {
	if len(p.chunks) >= p.maxOpen {
		err := fmt.Errorf("chunk pool full (%d chunks)", len(p.chunks))
		if rerr := chunk.Release(); rerr != nil {
			return multierror.Append(err, rerr)
		}
		return err
	}
	p.chunks = append(p.chunks, chunk)
	p.notePeak()
	return nil
}

// Take hands every held chunk to the caller, oldest first, and empties the
// pool.
func (p *HandlePool) Take() []*spillers.SpillFile {
	out := p.chunks
	p.chunks = nil
	return out
}

// ReleaseAll releases every held chunk.
func (p *HandlePool) ReleaseAll() error {
	var errs *multierror.Error
	for _, c := range p.chunks {
		if err := c.Release(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	p.chunks = nil
	return errs.ErrorOrNil()
}

// batchSize is how many of n chunks one pass merges so that consolidateTo
// remain, never fewer than two.
func (p *HandlePool) batchSize(n int) int {
	b := n - p.consolidateTo + 1
	return min(max(b, 2), n)
}

// consolidate merges the oldest chunks into one that takes their place.
func (p *HandlePool) consolidate(ctx context.Context) error {
	n := len(p.chunks)
	b := p.batchSize(n)
	if b < 2 {
		return fmt.Errorf("chunk pool of %d cannot consolidate", n)
	}

	inputs := make([]*spillers.SpillFile, b)
	copy(inputs, p.chunks[:b])
	p.chunks = append(p.chunks[:0], p.chunks[b:]...)
	p.draining = b
	defer func() { p.draining = 0 }()

	logger := logctx.FromContext(ctx)
	logger.Debug("Consolidating chunks",
		slog.Int("inputs", b),
		slog.Int("open", n),
		slog.Int("maxOpen", p.maxOpen))
	if p.onConsolidate != nil {
		p.onConsolidate(b, n, false)
	}

	merger, err := NewMerger(inputs, p.cmp, p.cancel, p.interval)
	if err != nil {
		return err
	}

	out, err := p.drainInto(merger)
	if err != nil {
		if cerr := merger.Close(); cerr != nil {
			return multierror.Append(err, cerr)
		}
		return err
	}

	p.draining = 0
	p.chunks = append([]*spillers.SpillFile{out}, p.chunks...)
	p.notePeak()
	p.passes++
	p.merged += b
	consolidationCounter.Add(ctx, 1)

	logger.Debug("Consolidated chunks",
		slog.String("chunk", out.ID),
		slog.Int64("rows", out.Rows),
		slog.Int64("bytes", out.Bytes),
		slog.Int("open", p.Open()))
	if p.onConsolidate != nil {
		p.onConsolidate(b, p.Open(), true)
	}
	return nil
}

func (p *HandlePool) drainInto(merger *Merger) (*spillers.SpillFile, error) {
	w, err := p.spiller.Create(p.schema)
	if err != nil {
		return nil, fmt.Errorf("create consolidated chunk: %w", err)
	}
	for {
		rec, err := merger.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = w.Append(rec)
		}
		if err != nil {
			if aerr := w.Abort(); aerr != nil {
				return nil, multierror.Append(err, aerr)
			}
			return nil, err
		}
	}
	return w.Seal()
}
