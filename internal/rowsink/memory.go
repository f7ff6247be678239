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

package rowsink

import (
	"context"
	"sync/atomic"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// Collecting keeps every row in memory.
type Collecting struct {
	Rows []pipeline.Row
	done bool
}

var _ Sink = (*Collecting)(nil)

func (c *Collecting) Consume(_ context.Context, row pipeline.Row) error {
	c.Rows = append(c.Rows, row)
	return nil
}

func (c *Collecting) Done(context.Context) error {
	c.done = true
	return nil
}

// Finished reports whether Done was called.
func (c *Collecting) Finished() bool { return c.done }

func (c *Collecting) Close() error { return nil }

// Counting discards rows and counts them. Count may be read from another
// goroutine while rows arrive.
type Counting struct {
	n atomic.Int64
}

var _ Sink = (*Counting)(nil)

func (c *Counting) Consume(context.Context, pipeline.Row) error {
	c.n.Add(1)
	return nil
}

func (c *Counting) Done(context.Context) error { return nil }

func (c *Counting) Close() error { return nil }

func (c *Counting) Count() int64 { return c.n.Load() }
