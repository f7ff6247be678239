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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// Monitor receives progress and is polled for cancellation. Calls may come
// from more than one goroutine, but never concurrently, so implementations
// need no locking of their own.
type Monitor interface {
	// SetProgress reports a fraction in [0, 1] and a short status line.
	SetProgress(fraction float64, status string)

	// CancelRequested reports whether the caller wants the sort to stop.
	CancelRequested() bool
}

// NopMonitor ignores progress and never cancels.
type NopMonitor struct{}

func (NopMonitor) SetProgress(float64, string) {}
func (NopMonitor) CancelRequested() bool        { return false }

// LogMonitor logs progress at Info each time the fraction advances by at
// least Step. It never requests cancellation; cancel through the context.
type LogMonitor struct {
	Logger *slog.Logger
	Step   float64

	last float64
}

func (m *LogMonitor) SetProgress(fraction float64, status string) {
	step := m.Step
	if step <= 0 {
		step = 0.1
	}
	if fraction < 1 && fraction-m.last < step {
		return
	}
	m.last = fraction
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Sort progress", slog.String("percent", fmt.Sprintf("%.0f%%", fraction*100)), slog.String("status", status))
}

func (m *LogMonitor) CancelRequested() bool { return false }

// RowSink receives the sorted rows, one at a time, then Done once.
type RowSink interface {
	Consume(ctx context.Context, row pipeline.Row) error
	Done(ctx context.Context) error
}

// State is a sort's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StateConsolidating
	StateFinalMerging
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateIngesting:     "ingesting",
	StateConsolidating: "consolidating",
	StateFinalMerging:  "final-merging",
	StateDone:          "done",
	StateCancelled:     "cancelled",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Summary describes a finished sort, successful or not.
type Summary struct {
	RunID               string
	State               State
	RowsIn              int64
	RowsOut             int64
	ChunksCreated       int64 // chunks written from the ingest buffer
	ConsolidationPasses int
	ChunksConsolidated  int // input chunks consumed by consolidation
	PeakOpenChunks      int
	FinalMergeWidth     int
	Duration            time.Duration
}

func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("runID", s.RunID),
		slog.String("state", s.State.String()),
		slog.Int64("rowsIn", s.RowsIn),
		slog.Int64("rowsOut", s.RowsOut),
		slog.Int64("chunksCreated", s.ChunksCreated),
		slog.Int("consolidationPasses", s.ConsolidationPasses),
		slog.Int("peakOpenChunks", s.PeakOpenChunks),
		slog.Duration("duration", s.Duration),
	)
}

// progress serializes Monitor calls and maps phase progress onto [0, 1]:
// ingestion covers the first half, the final merge the second.
type progress struct {
	mu      sync.Mutex
	monitor Monitor
	total   int64 // expected rows, or -1
	last    atomic.Int64
}

func newProgress(monitor Monitor, total int64) *progress {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	return &progress{monitor: monitor, total: total}
}

func (p *progress) report(fraction float64, status string) {
	fraction = min(max(fraction, 0), 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitor.SetProgress(fraction, status)
}

// cancelRequested polls the monitor under the same lock as report. With
// AsyncSpill the spill goroutine polls while ingest does too.
func (p *progress) cancelRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitor.CancelRequested()
}

func (p *progress) ingested(rows int64) {
	p.last.Store(rows)
	if p.total > 0 {
		p.report(0.5*float64(rows)/float64(p.total), fmt.Sprintf("Reading rows (%d/%d)", rows, p.total))
		return
	}
	p.report(0, fmt.Sprintf("Reading rows (%d)", rows))
}

func (p *progress) consolidating(chunks, open int) {
	p.report(p.lastFraction(), fmt.Sprintf("Merging %d of %d chunks", chunks, open))
}

func (p *progress) merged(rows, total int64) {
	if total <= 0 {
		p.report(1, "Writing sorted rows")
		return
	}
	p.report(0.5+0.5*float64(rows)/float64(total), fmt.Sprintf("Writing sorted rows (%d/%d)", rows, total))
}

// lastFraction is the fraction of the ingest reported so far.
func (p *progress) lastFraction() float64 {
	rows := p.last.Load()
	if p.total <= 0 {
		return 0
	}
	return 0.5 * float64(rows) / float64(p.total)
}
