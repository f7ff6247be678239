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

package pipeline

import (
	"context"
	"math/bits"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBatchSize is the capacity of batches handed out by GetBatch.
const DefaultBatchSize = 1000

var (
	meter = otel.Meter("github.com/cardinalhq/tablesort/internal/pipeline")

	batchPoolCounter metric.Int64Counter

	batchGetAttr = metric.WithAttributeSet(attribute.NewSet(attribute.String("op", "get")))
	batchPutAttr = metric.WithAttributeSet(attribute.NewSet(attribute.String("op", "put")))
)

func init() {
	var err error
	batchPoolCounter, err = meter.Int64Counter(
		"tablesort.pipeline.batchpool.ops",
		metric.WithDescription("Batches taken from and returned to the batch pool"),
	)
	if err != nil {
		panic(err)
	}
}

// Batch is a group of rows handed from a Reader to its consumer. Batches
// are pooled by capacity class; the rows a batch carries are not pooled and
// may be kept after ReturnBatch.
type Batch struct {
	rows  []Row
	class int
}

var (
	batchPools  sync.Map // capacity class -> *sync.Pool
	outstanding atomic.Int64
)

// sizeClass rounds n up to a power of two.
func sizeClass(n int) int {
	if n <= 0 {
		n = DefaultBatchSize
	}
	return 1 << bits.Len(uint(n-1))
}

func poolFor(class int) *sync.Pool {
	if p, ok := batchPools.Load(class); ok {
		return p.(*sync.Pool)
	}
	p, _ := batchPools.LoadOrStore(class, &sync.Pool{
		New: func() any {
			return &Batch{rows: make([]Row, 0, class), class: class}
		},
	})
	return p.(*sync.Pool)
}

// GetBatch returns an empty batch with room for DefaultBatchSize rows.
func GetBatch() *Batch {
	return GetBatchSized(DefaultBatchSize)
}

// GetBatchSized returns an empty batch with room for at least n rows
// without growing.
func GetBatchSized(n int) *Batch {
	b := poolFor(sizeClass(n)).Get().(*Batch)
	outstanding.Add(1)
	batchPoolCounter.Add(context.Background(), 1, batchGetAttr)
	return b
}

// ReturnBatch gives a batch back to its pool. nil is ignored. Batches that
// grew far past their class are dropped.
func ReturnBatch(b *Batch) {
	if b == nil {
		return
	}
	outstanding.Add(-1)
	batchPoolCounter.Add(context.Background(), 1, batchPutAttr)
	if cap(b.rows) > 4*b.class {
		return
	}
	clear(b.rows)
	b.rows = b.rows[:0]
	poolFor(b.class).Put(b)
}

// OutstandingBatches returns the number of batches handed out and not yet
// returned.
func OutstandingBatches() int64 {
	return outstanding.Load()
}

func (b *Batch) Len() int {
	return len(b.rows)
}

// Cap is the number of rows the batch holds before growing.
func (b *Batch) Cap() int {
	return cap(b.rows)
}

// Get returns the row at index, or a zero Row when out of range.
func (b *Batch) Get(index int) Row {
	if index < 0 || index >= len(b.rows) {
		return Row{}
	}
	return b.rows[index]
}

func (b *Batch) Append(row Row) {
	b.rows = append(b.rows, row)
}

// Rows returns the batch's rows. The slice is only valid until the batch
// is returned to the pool.
func (b *Batch) Rows() []Row {
	return b.rows
}
