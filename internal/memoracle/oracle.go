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

// Package memoracle answers "should buffered rows be spilled now?" from
// live memory measurements, and provides deterministic fakes for tests.
package memoracle

import (
	"fmt"
	"sync/atomic"
)

// Oracle is polled after every buffered row.
type Oracle interface {
	ShouldSpill() bool
}

// Resetter is implemented by oracles that cache a decision. The chunk writer
// calls Reset after each spill, since the memory it just freed is not
// visible until the next measurement.
type Resetter interface {
	Reset()
}

// DefaultSampleEvery is how many ShouldSpill calls share one measurement.
const DefaultSampleEvery = 64

// ThresholdOracle reports pressure when the free fraction of the limit
// drops below MinFreeFraction. Measurements are taken on the first call and
// then once every sampleEvery calls; calls in between return the last
// decision. A failed measurement never reports pressure.
type ThresholdOracle struct {
	source          Source
	minFreeFraction float64
	sampleEvery     uint64

	calls    atomic.Uint64
	pressure atomic.Bool
}

var (
	_ Oracle   = (*ThresholdOracle)(nil)
	_ Resetter = (*ThresholdOracle)(nil)
)

// NewThresholdOracle validates minFreeFraction (in (0,1)) and sampleEvery
// (values < 1 become DefaultSampleEvery).
func NewThresholdOracle(source Source, minFreeFraction float64, sampleEvery int) (*ThresholdOracle, error) {
	if source == nil {
		return nil, fmt.Errorf("memory source is required")
	}
	if minFreeFraction <= 0 || minFreeFraction >= 1 {
		return nil, fmt.Errorf("memory threshold must be in (0,1), got %v", minFreeFraction)
	}
	if sampleEvery < 1 {
		sampleEvery = DefaultSampleEvery
	}
	return &ThresholdOracle{
		source:          source,
		minFreeFraction: minFreeFraction,
		sampleEvery:     uint64(sampleEvery),
	}, nil
}

func (o *ThresholdOracle) ShouldSpill() bool {
	n := o.calls.Add(1)
	if (n-1)%o.sampleEvery != 0 {
		return o.pressure.Load()
	}
	p := o.measure()
	o.pressure.Store(p)
	return p
}

// Reset clears the cached decision and defers the next measurement by a
// full sampling interval, so a buffer refills to about sampleEvery rows
// under sustained pressure.
func (o *ThresholdOracle) Reset() {
	o.pressure.Store(false)
	o.calls.Store(1)
}

func (o *ThresholdOracle) measure() bool {
	used, limit, err := o.source.Sample()
	if err != nil || limit == 0 {
		return false
	}
	if used >= limit {
		return true
	}
	free := float64(limit-used) / float64(limit)
	return free < o.minFreeFraction
}

// Fixed returns an oracle that always answers v.
func Fixed(v bool) Oracle {
	return fixed(v)
}

type fixed bool

func (f fixed) ShouldSpill() bool { return bool(f) }

// Never is an oracle that never reports pressure.
var Never Oracle = fixed(false)

// EveryN reports pressure on every n-th call (n, 2n, 3n, ...). It lets tests
// force spills at exact row positions independent of the row cap.
func EveryN(n int) Oracle {
	if n < 1 {
		n = 1
	}
	return &everyN{n: uint64(n)}
}

type everyN struct {
	n     uint64
	calls atomic.Uint64
}

func (e *everyN) ShouldSpill() bool {
	return e.calls.Add(1)%e.n == 0
}

// Func adapts a function to Oracle.
type Func func() bool

func (f Func) ShouldSpill() bool { return f() }
