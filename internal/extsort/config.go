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
	"fmt"
	"strings"

	"github.com/cardinalhq/tablesort/internal/memoracle"
	"github.com/cardinalhq/tablesort/internal/spillers"
)

// Projection selects which columns a sort emits.
type Projection string

const (
	// ProjectAll emits every input column.
	ProjectAll Projection = "all"
	// ProjectSortColumns emits only the sort columns, in key order. Rows are
	// narrowed on ingestion, so chunks hold only those columns.
	ProjectSortColumns Projection = "sort-columns"
)

// Defaults applied to zero Config fields.
const (
	DefaultMemoryThreshold     = 0.02
	DefaultMaxOpenChunks       = 32
	DefaultMaxRowsPerChunk     = 5000
	DefaultCancelCheckInterval = 128
)

// Config controls one sort. Zero fields take the defaults above; negative
// values are rejected by Validate.
type Config struct {
	// SortColumns lists the key columns, most significant first.
	SortColumns []string `mapstructure:"sort_columns"`

	// MemoryThreshold is the free fraction of the memory limit below which
	// the buffer is spilled.
	MemoryThreshold float64 `mapstructure:"memory_threshold"`

	// MemorySource is what MemoryThreshold is measured against: "heap" for
	// the Go heap under the process limit, "system" for host memory.
	MemorySource string `mapstructure:"memory_source"`

	// MaxOpenChunks caps the sealed chunks held at once. At least 2.
	MaxOpenChunks int `mapstructure:"max_open_chunks"`

	// MaxRowsPerChunk spills the buffer once it holds this many rows.
	MaxRowsPerChunk int `mapstructure:"max_rows_per_chunk"`

	// ConsolidateTo is the chunk count left after a consolidation pass.
	// Defaults to half of MaxOpenChunks.
	ConsolidateTo int `mapstructure:"consolidate_to"`

	// CancelCheckInterval is the number of rows between cancellation checks.
	CancelCheckInterval int `mapstructure:"cancel_check_interval"`

	Projection Projection `mapstructure:"projection"`

	// AsyncSpill sorts and writes full buffers on a second goroutine while
	// ingestion continues into a fresh buffer.
	AsyncSpill bool `mapstructure:"async_spill"`

	// TempDir holds the per-sort spill directory. Empty means os.TempDir().
	TempDir string `mapstructure:"temp_dir"`

	// Codec is the chunk record codec, "cbor" or "gob".
	Codec string `mapstructure:"codec"`

	// CompressionLevel is the zstd level for chunk files: "fastest",
	// "default", "better" or "best".
	CompressionLevel string `mapstructure:"compression_level"`

	// MinFreeDiskBytes refuses new chunks when the spill filesystem has
	// less space available. Zero disables the check.
	MinFreeDiskBytes uint64 `mapstructure:"min_free_disk_bytes"`
}

// DefaultConfig returns a Config with every default filled in and no sort
// columns.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.MemoryThreshold == 0 {
		c.MemoryThreshold = DefaultMemoryThreshold
	}
	if c.MemorySource == "" {
		c.MemorySource = memoracle.SourceHeap
	}
	if c.MaxOpenChunks == 0 {
		c.MaxOpenChunks = DefaultMaxOpenChunks
	}
	if c.MaxRowsPerChunk == 0 {
		c.MaxRowsPerChunk = DefaultMaxRowsPerChunk
	}
	if c.ConsolidateTo == 0 {
		c.ConsolidateTo = max(1, c.MaxOpenChunks/2)
	}
	if c.CancelCheckInterval == 0 {
		c.CancelCheckInterval = DefaultCancelCheckInterval
	}
	if c.Projection == "" {
		c.Projection = ProjectAll
	}
	if c.Codec == "" {
		c.Codec = spillers.CodecCBOR
	}
	if c.CompressionLevel == "" {
		c.CompressionLevel = "fastest"
	}
	return c
}

// Validate checks a Config after defaults are applied.
func (c Config) Validate() error {
	if len(c.SortColumns) == 0 {
		return fmt.Errorf("%w: at least one sort column is required", ErrInvalidSortSpec)
	}
	for _, col := range c.SortColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%w: empty sort column name", ErrInvalidSortSpec)
		}
	}

	switch {
	case c.MemoryThreshold <= 0 || c.MemoryThreshold >= 1:
		return fmt.Errorf("%w: memory_threshold must be in (0, 1), got %v", ErrInvalidConfig, c.MemoryThreshold)
	case c.MaxOpenChunks < 2:
		return fmt.Errorf("%w: max_open_chunks must be at least 2, got %d", ErrInvalidConfig, c.MaxOpenChunks)
	case c.MaxRowsPerChunk < 1:
		return fmt.Errorf("%w: max_rows_per_chunk must be positive, got %d", ErrInvalidConfig, c.MaxRowsPerChunk)
	case c.ConsolidateTo < 1 || c.ConsolidateTo >= c.MaxOpenChunks:
		return fmt.Errorf("%w: consolidate_to must be in [1, %d), got %d", ErrInvalidConfig, c.MaxOpenChunks, c.ConsolidateTo)
	case c.CancelCheckInterval < 1:
		return fmt.Errorf("%w: cancel_check_interval must be positive, got %d", ErrInvalidConfig, c.CancelCheckInterval)
	}

	switch c.Projection {
	case ProjectAll, ProjectSortColumns:
	default:
		return fmt.Errorf("%w: unknown projection %q", ErrInvalidConfig, c.Projection)
	}

	switch c.MemorySource {
	case memoracle.SourceHeap, memoracle.SourceSystem:
	default:
		return fmt.Errorf("%w: unknown memory_source %q", ErrInvalidConfig, c.MemorySource)
	}

	if _, err := spillers.NewCodec(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := spillers.ParseCompressionLevel(c.CompressionLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
