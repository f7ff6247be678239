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
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/pipeline"
	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// collectSink keeps every row it is given.
type collectSink struct {
	rows    []pipeline.Row
	done    int
	onRow   func(n int)
	failAt  int
	failErr error
}

func (c *collectSink) Consume(_ context.Context, row pipeline.Row) error {
	if c.failAt > 0 && len(c.rows)+1 == c.failAt {
		return c.failErr
	}
	c.rows = append(c.rows, row)
	if c.onRow != nil {
		c.onRow(len(c.rows))
	}
	return nil
}

func (c *collectSink) Done(context.Context) error {
	c.done++
	return nil
}

func (c *collectSink) keys() []string {
	out := make([]string, len(c.rows))
	for i, r := range c.rows {
		out[i] = string(r.Key)
	}
	return out
}

// recordingMonitor records progress and cancels on request.
type recordingMonitor struct {
	mu        sync.Mutex
	fractions []float64
	statuses  []string
	cancel    atomic.Bool
}

func (m *recordingMonitor) SetProgress(f float64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fractions = append(m.fractions, f)
	m.statuses = append(m.statuses, status)
}

func (m *recordingMonitor) CancelRequested() bool { return m.cancel.Load() }

func newMemorySpiller(t *testing.T) *spillers.MemorySpiller {
	t.Helper()
	s, err := spillers.NewMemorySpiller(nil, 0)
	require.NoError(t, err)
	return s
}

func mustComparator(t *testing.T, schema *pipeline.Schema, cols ...string) *sortkey.Comparator {
	t.Helper()
	c, err := sortkey.Build(schema, cols)
	require.NoError(t, err)
	return c
}

// writeRecords stores recs as one chunk, in the order given.
func writeRecords(t *testing.T, s spillers.Spiller, schema *pipeline.Schema, recs ...spillers.Record) *spillers.SpillFile {
	t.Helper()
	w, err := s.Create(schema)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Append(r))
	}
	f, err := w.Seal()
	require.NoError(t, err)
	return f
}

func intSchema() *pipeline.Schema {
	return pipeline.MustSchema(pipeline.NewColumn("v", pipeline.KindInt))
}

func intRecord(seq uint64, v int64) spillers.Record {
	return spillers.Record{
		Seq: seq,
		Row: pipeline.NewRow(pipeline.RowKey(fmt.Sprintf("s%d", seq)), pipeline.IntValue(v)),
	}
}

// truncatingSpiller wraps a FileSpiller and damages every chunk after
// the first skip chunks are sealed.
type truncatingSpiller struct {
	*spillers.FileSpiller
	skip   int
	sealed int
}

func (s *truncatingSpiller) Create(schema *pipeline.Schema) (spillers.SpillWriter, error) {
	w, err := s.FileSpiller.Create(schema)
	if err != nil {
		return nil, err
	}
	return &truncatingWriter{SpillWriter: w, parent: s}, nil
}

type truncatingWriter struct {
	spillers.SpillWriter
	parent *truncatingSpiller
}

func (w *truncatingWriter) Seal() (*spillers.SpillFile, error) {
	f, err := w.SpillWriter.Seal()
	if err != nil {
		return nil, err
	}
	w.parent.sealed++
	if w.parent.sealed > w.parent.skip {
		if err := os.Truncate(f.Path, f.Bytes/2); err != nil {
			return nil, err
		}
	}
	return f, nil
}

var errSinkFailed = errors.New("sink failed")
