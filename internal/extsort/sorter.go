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

// Package extsort sorts tables larger than memory. Rows are buffered,
// sorted and spilled as chunks; the number of chunks held open is capped by
// merging the oldest together; a final k-way merge streams the result to a
// sink. Ties keep input order.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/tablesort/internal/idgen"
	"github.com/cardinalhq/tablesort/internal/logctx"
	"github.com/cardinalhq/tablesort/internal/memoracle"
	"github.com/cardinalhq/tablesort/internal/pipeline"
	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// Sorter runs one sort.
type Sorter struct {
	cfg     Config
	spiller spillers.Spiller
	oracle  memoracle.Oracle

	state atomic.Int32
	used  atomic.Bool
}

// Option customizes a Sorter.
type Option func(*Sorter)

// WithSpiller stores chunks in s instead of a private FileSpiller. The
// caller keeps ownership and closes it.
func WithSpiller(s spillers.Spiller) Option {
	return func(so *Sorter) { so.spiller = s }
}

// WithOracle replaces the heap-based memory oracle.
func WithOracle(o memoracle.Oracle) Option {
	return func(so *Sorter) { so.oracle = o }
}

// NewSorter applies defaults to cfg and validates it. No I/O happens here.
func NewSorter(cfg Config, opts ...Option) (*Sorter, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sorter{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Sorter) Config() Config { return s.cfg }

// State returns the current lifecycle state. It may be called from any
// goroutine while Sort runs.
func (s *Sorter) State() State { return State(s.state.Load()) }

// OutputSchema is the schema of the rows Sort delivers for input. It fails
// like Sort would when the sort columns do not resolve.
func (s *Sorter) OutputSchema(input *pipeline.Schema) (*pipeline.Schema, error) {
	cmp, err := sortkey.Build(input, s.cfg.SortColumns)
	if err != nil {
		return nil, err
	}
	if s.cfg.Projection == ProjectSortColumns {
		return input.Project(cmp.Indices()), nil
	}
	return input, nil
}

func (s *Sorter) setState(st State) {
	s.state.Store(int32(st))
}

// Sort reads every row from reader, sorts them by the configured columns
// and pushes them to sink in order, calling sink.Done at the end. The
// reader is not closed. Progress goes to monitor, which may be nil.
//
// On error no further rows reach the sink, every chunk is released, and
// the state ends in StateCancelled or StateFailed.
func (s *Sorter) Sort(ctx context.Context, reader pipeline.Reader, sink RowSink, monitor Monitor) (Summary, error) {
	if !s.used.CompareAndSwap(false, true) {
		return Summary{State: s.State()}, ErrSorterUsed
	}

	start := time.Now()
	runID := idgen.NextRunID()
	ctx, logger := logctx.With(ctx, slog.String("sortID", runID))

	run := &sortRun{
		sorter:  s,
		cfg:     s.cfg,
		cancel:  newCancelCheck(ctx, nil),
		summary: Summary{RunID: runID},
	}

	err := run.setup(ctx, reader, monitor)
	if err == nil {
		err = run.ingest(ctx, reader)
	}
	if err == nil {
		err = run.merge(ctx, sink)
	}
	if cerr := run.cleanup(); cerr != nil {
		if err == nil {
			err = fmt.Errorf("cleanup: %w", cerr)
		} else {
			err = multierror.Append(err, cerr)
		}
	}

	final := StateDone
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		final = StateCancelled
	default:
		final = StateFailed
	}
	s.setState(final)

	summary := run.summary
	summary.State = final
	summary.Duration = time.Since(start)
	if run.pool != nil {
		summary.PeakOpenChunks = run.pool.Peak()
		summary.ConsolidationPasses = run.pool.Passes()
		summary.ChunksConsolidated = run.pool.Consolidated()
	}
	if run.writer != nil {
		summary.ChunksCreated = run.writer.Created()
	}

	stateAttr := otelmetric.WithAttributes(attribute.String("state", final.String()))
	sortsCounter.Add(ctx, 1, stateAttr)
	sortDuration.Record(ctx, summary.Duration.Seconds(), stateAttr)

	if err != nil {
		logger.Warn("Sort did not complete", slog.Any("summary", summary), slog.Any("error", err))
		return summary, err
	}
	logger.Info("Sort complete", slog.Any("summary", summary))
	return summary, nil
}

// sortRun is the state of one Sort call.
type sortRun struct {
	sorter *Sorter
	cfg    Config
	cancel cancelCheck

	cmp     *sortkey.Comparator // over chunk rows
	project []int               // nil unless narrowing to the sort columns
	schema  *pipeline.Schema    // of input rows
	oracle  memoracle.Oracle

	spiller    spillers.Spiller
	ownSpiller bool
	pool       *HandlePool
	writer     *ChunkWriter
	merger     *Merger
	progress   *progress

	summary Summary
}

// setup resolves the sort columns before touching any storage.
func (r *sortRun) setup(ctx context.Context, reader pipeline.Reader, monitor Monitor) error {
	if reader == nil {
		return fmt.Errorf("%w: no input", ErrInvalidSortSpec)
	}
	r.schema = reader.Schema()
	cmp, err := sortkey.Build(r.schema, r.cfg.SortColumns)
	if err != nil {
		return err
	}

	chunkSchema := r.schema
	r.cmp = cmp
	if r.cfg.Projection == ProjectSortColumns {
		r.project = cmp.Indices()
		chunkSchema = r.schema.Project(r.project)
		r.cmp = cmp.Projected()
	}

	r.progress = newProgress(monitor, reader.RowCount())
	r.cancel = newCancelCheck(ctx, r.progress.cancelRequested)

	r.oracle = r.sorter.oracle
	if r.oracle == nil {
		source, err := memoracle.NewSource(r.cfg.MemorySource)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		o, err := memoracle.NewThresholdOracle(source, r.cfg.MemoryThreshold, memoracle.DefaultSampleEvery)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		r.oracle = o
	}

	r.spiller = r.sorter.spiller
	if r.spiller == nil {
		codec, err := spillers.NewCodec(r.cfg.Codec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		level, err := spillers.ParseCompressionLevel(r.cfg.CompressionLevel)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		fs, err := spillers.NewFileSpiller(r.cfg.TempDir,
			spillers.WithCodec(codec),
			spillers.WithCompressionLevel(level),
			spillers.WithMinFreeBytes(r.cfg.MinFreeDiskBytes))
		if err != nil {
			return err
		}
		r.spiller = fs
		r.ownSpiller = true
		logctx.FromContext(ctx).Debug("Created spill directory", slog.String("path", fs.Dir()))
	}

	r.pool = newHandlePool(poolConfig{
		maxOpen:       r.cfg.MaxOpenChunks,
		consolidateTo: r.cfg.ConsolidateTo,
		cmp:           r.cmp,
		schema:        chunkSchema,
		spiller:       r.spiller,
		cancel:        r.cancel,
		interval:      r.cfg.CancelCheckInterval,
		onConsolidate: r.onConsolidate,
	})
	r.writer = newChunkWriter(ctx, chunkWriterConfig{
		cmp:     r.cmp,
		schema:  chunkSchema,
		spiller: r.spiller,
		oracle:  r.oracle,
		pool:    r.pool,
		maxRows: r.cfg.MaxRowsPerChunk,
		async:   r.cfg.AsyncSpill,
	})

	logctx.FromContext(ctx).Info("Sort started",
		slog.String("order", cmp.String()),
		slog.Int64("expectedRows", reader.RowCount()),
		slog.String("projection", string(r.cfg.Projection)),
		slog.Int("maxOpenChunks", r.cfg.MaxOpenChunks),
		slog.Bool("asyncSpill", r.cfg.AsyncSpill))
	return nil
}

func (r *sortRun) onConsolidate(inputs, open int, done bool) {
	if done {
		r.sorter.setState(StateIngesting)
		return
	}
	r.sorter.setState(StateConsolidating)
	r.progress.consolidating(inputs, open)
}

func (r *sortRun) ingest(ctx context.Context, reader pipeline.Reader) error {
	r.sorter.setState(StateIngesting)
	interval := int64(r.cfg.CancelCheckInterval)

	for {
		batch, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			pipeline.ReturnBatch(batch)
			break
		}
		if err != nil {
			pipeline.ReturnBatch(batch)
			return asCancelled(ctx, fmt.Errorf("read input: %w", err))
		}

		n := int64(0)
		for _, row := range batch.Rows() {
			if r.summary.RowsIn%interval == 0 {
				if err := r.cancel(); err != nil {
					pipeline.ReturnBatch(batch)
					return err
				}
			}
			if err := r.schema.Validate(row); err != nil {
				pipeline.ReturnBatch(batch)
				return fmt.Errorf("input row %d: %w", r.summary.RowsIn, err)
			}
			if r.project != nil {
				row = row.Project(r.project)
			}
			rec := spillers.Record{Seq: uint64(r.summary.RowsIn), Row: row}
			if err := r.writer.Add(ctx, rec); err != nil {
				pipeline.ReturnBatch(batch)
				return err
			}
			r.summary.RowsIn++
			n++
		}
		pipeline.ReturnBatch(batch)
		rowsIngestedCounter.Add(ctx, n)
		r.progress.ingested(r.summary.RowsIn)
	}

	if err := r.writer.Close(ctx); err != nil {
		return err
	}
	logctx.FromContext(ctx).Info("Input consumed",
		slog.Int64("rows", r.summary.RowsIn),
		slog.Int64("chunks", r.writer.Created()),
		slog.Int("open", r.pool.Open()),
		slog.Int("consolidations", r.pool.Passes()))
	return nil
}

func (r *sortRun) merge(ctx context.Context, sink RowSink) error {
	r.sorter.setState(StateFinalMerging)
	chunks := r.pool.Take()
	r.summary.FinalMergeWidth = len(chunks)

	if len(chunks) > 0 {
		merger, err := NewMerger(chunks, r.cmp, r.cancel, r.cfg.CancelCheckInterval)
		if err != nil {
			return err
		}
		r.merger = merger

		interval := int64(r.cfg.CancelCheckInterval)
		for {
			rec, err := merger.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := sink.Consume(ctx, rec.Row); err != nil {
				return asCancelled(ctx, fmt.Errorf("sink: %w", err))
			}
			r.summary.RowsOut++
			if r.summary.RowsOut%interval == 0 {
				r.progress.merged(r.summary.RowsOut, r.summary.RowsIn)
			}
		}
		rowsEmittedCounter.Add(ctx, r.summary.RowsOut)
	}

	if err := sink.Done(ctx); err != nil {
		return asCancelled(ctx, fmt.Errorf("sink: %w", err))
	}
	r.progress.report(1, fmt.Sprintf("Sorted %d rows", r.summary.RowsOut))
	return nil
}

// cleanup releases everything the run still holds, in ownership order:
// the writer's background work first, then the merger and the pool.
func (r *sortRun) cleanup() error {
	var errs *multierror.Error
	if r.writer != nil {
		r.writer.Abort()
	}
	if r.merger != nil {
		if err := r.merger.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if r.pool != nil {
		if err := r.pool.ReleaseAll(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if r.ownSpiller && r.spiller != nil {
		if err := r.spiller.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
