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
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/tablesort/internal/sortkey"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// Merger yields the records of several sorted chunks in global order. It
// owns its chunks from construction: each one is released as soon as it is
// drained, and Close releases whatever is left. Ties under the comparator
// go to the lower sequence number, then to the earlier chunk.
type Merger struct {
	cmp      *sortkey.Comparator
	heap     mergeHeap
	open     []*mergeCursor // every cursor not yet released, for Close
	cancel   cancelCheck
	interval int
	width    int
	emitted  int64
	done     bool
}

type mergeCursor struct {
	chunk  *spillers.SpillFile
	reader spillers.SpillReader
	head   spillers.Record
	order  int
}

// NewMerger opens every chunk and reads its first record. On error all
// chunks are released before returning.
func NewMerger(chunks []*spillers.SpillFile, cmp *sortkey.Comparator, cancel cancelCheck, interval int) (*Merger, error) {
	if interval < 1 {
		interval = DefaultCancelCheckInterval
	}
	if cancel == nil {
		cancel = func() error { return nil }
	}
	m := &Merger{
		cmp:      cmp,
		heap:     mergeHeap{cmp: cmp, cursors: make([]*mergeCursor, 0, len(chunks))},
		open:     make([]*mergeCursor, 0, len(chunks)),
		cancel:   cancel,
		interval: interval,
		width:    len(chunks),
	}
	cursors := make([]*mergeCursor, len(chunks))
	for i, chunk := range chunks {
		cursors[i] = &mergeCursor{chunk: chunk, order: i}
		m.open = append(m.open, cursors[i])
	}

	for _, c := range cursors {
		r, err := c.chunk.Open()
		if err != nil {
			return nil, m.abort(fmt.Errorf("open chunk %s: %w", c.chunk.ID, err))
		}
		c.reader = r
		ok, err := m.advance(c)
		if err != nil {
			return nil, m.abort(err)
		}
		if ok {
			m.heap.cursors = append(m.heap.cursors, c)
		}
	}
	m.heap.init()
	return m, nil
}

// Width is the number of chunks the merger started with.
func (m *Merger) Width() int { return m.width }

// Emitted is the number of records returned so far.
func (m *Merger) Emitted() int64 { return m.emitted }

// Next returns the next record in order, or io.EOF when all chunks are
// drained. Cancellation is checked every interval records; on cancellation
// or a read failure the merger releases everything it holds.
func (m *Merger) Next() (spillers.Record, error) {
	if m.done {
		return spillers.Record{}, io.EOF
	}
	if m.emitted%int64(m.interval) == 0 {
		if err := m.cancel(); err != nil {
			return spillers.Record{}, m.abort(err)
		}
	}
	if m.heap.len() == 0 {
		m.done = true
		return spillers.Record{}, io.EOF
	}

	c := m.heap.cursors[0]
	rec := c.head
	ok, err := m.advance(c)
	if err != nil {
		return spillers.Record{}, m.abort(err)
	}
	if ok {
		m.heap.fix0()
	} else {
		m.heap.pop()
	}
	m.emitted++
	return rec, nil
}

// advance loads c's next record. At the end of the chunk it closes and
// releases it and reports false.
func (m *Merger) advance(c *mergeCursor) (bool, error) {
	rec, err := c.reader.Next()
	if err == nil {
		c.head = rec
		return true, nil
	}
	if !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read chunk %s: %w", c.chunk.ID, err)
	}
	c.head = spillers.Record{}
	if err := m.retire(c); err != nil {
		return false, err
	}
	return false, nil
}

func (m *Merger) retire(c *mergeCursor) error {
	for i, o := range m.open {
		if o == c {
			m.open = append(m.open[:i], m.open[i+1:]...)
			break
		}
	}
	var errs *multierror.Error
	if c.reader != nil {
		if err := c.reader.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.reader = nil
	}
	if err := c.chunk.Release(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// Close releases every chunk not yet drained. It is safe to call more than
// once and after Next has returned an error.
func (m *Merger) Close() error {
	m.done = true
	var errs *multierror.Error
	for len(m.open) > 0 {
		if err := m.retire(m.open[0]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	m.heap.cursors = nil
	return errs.ErrorOrNil()
}

func (m *Merger) abort(cause error) error {
	if err := m.Close(); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}

// mergeHeap is a min-heap of cursors keyed by their head record.
type mergeHeap struct {
	cmp     *sortkey.Comparator
	cursors []*mergeCursor
}

func (h *mergeHeap) len() int { return len(h.cursors) }

func (h *mergeHeap) less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	if c := h.cmp.Compare(a.head.Row, b.head.Row); c != 0 {
		return c < 0
	}
	if a.head.Seq != b.head.Seq {
		return a.head.Seq < b.head.Seq
	}
	return a.order < b.order
}

func (h *mergeHeap) swap(i, j int) {
	h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i]
}

func (h *mergeHeap) init() {
	n := h.len()
	for i := n/2 - 1; i >= 0; i-- {
		h.down(i, n)
	}
}

// fix0 restores the heap after the root's head changed.
func (h *mergeHeap) fix0() {
	h.down(0, h.len())
}

func (h *mergeHeap) pop() *mergeCursor {
	n := h.len() - 1
	h.swap(0, n)
	h.down(0, n)
	item := h.cursors[n]
	h.cursors[n] = nil
	h.cursors = h.cursors[:n]
	return item
}

func (h *mergeHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
