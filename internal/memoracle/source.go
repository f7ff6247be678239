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

package memoracle

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"runtime/metrics"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/shirou/gopsutil/v4/mem"
)

// Source reports current memory use against the maximum the process may use.
type Source interface {
	Sample() (used, limit uint64, err error)
}

// Source names accepted by NewSource.
const (
	SourceHeap   = "heap"
	SourceSystem = "system"
)

// NewSource returns the source called name. An empty name selects the heap.
func NewSource(name string) (Source, error) {
	switch name {
	case "", SourceHeap:
		return NewHeapSource(), nil
	case SourceSystem:
		return SystemSource{}, nil
	}
	return nil, fmt.Errorf("unknown memory source %q", name)
}

// ErrNoLimit is returned by a Source that cannot determine a memory limit.
var ErrNoLimit = errors.New("memory limit unknown")

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapSource measures the Go heap against the process memory limit. The
// limit is the runtime soft limit (GOMEMLIMIT) when one is set, otherwise the
// cgroup limit, otherwise total system memory.
type HeapSource struct {
	limit   uint64
	samples []metrics.Sample
}

var _ Source = (*HeapSource)(nil)

// NewHeapSource resolves the memory limit once. A zero limit makes every
// Sample return ErrNoLimit.
func NewHeapSource() *HeapSource {
	return &HeapSource{
		limit:   resolveLimit(),
		samples: []metrics.Sample{{Name: heapObjectsMetric}},
	}
}

// NewHeapSourceWithLimit uses an explicit limit in bytes.
func NewHeapSourceWithLimit(limit uint64) *HeapSource {
	return &HeapSource{
		limit:   limit,
		samples: []metrics.Sample{{Name: heapObjectsMetric}},
	}
}

func resolveLimit() uint64 {
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		return uint64(l)
	}
	provider := memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)
	l, err := provider()
	if err != nil {
		return 0
	}
	return l
}

// Limit returns the resolved limit in bytes, or 0 when unknown.
func (h *HeapSource) Limit() uint64 {
	return h.limit
}

func (h *HeapSource) Sample() (uint64, uint64, error) {
	if h.limit == 0 {
		return 0, 0, ErrNoLimit
	}
	metrics.Read(h.samples)
	v := h.samples[0].Value
	if v.Kind() != metrics.KindUint64 {
		return 0, 0, errors.New("heap objects metric unavailable")
	}
	return v.Uint64(), h.limit, nil
}

// SystemSource measures host memory: used is total minus available.
type SystemSource struct{}

var _ Source = SystemSource{}

func (SystemSource) Sample() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	if vm.Total == 0 {
		return 0, 0, ErrNoLimit
	}
	used := vm.Total - min(vm.Available, vm.Total)
	return used, vm.Total, nil
}

// FixedSource always reports the same numbers. Tests use it to pin the
// oracle's decision.
type FixedSource struct {
	Used  uint64
	Limit uint64
	Err   error
}

var _ Source = FixedSource{}

func (f FixedSource) Sample() (uint64, uint64, error) {
	return f.Used, f.Limit, f.Err
}
