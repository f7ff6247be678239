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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cardinalhq/tablesort/config"
	"github.com/cardinalhq/tablesort/internal/extsort"
	"github.com/cardinalhq/tablesort/internal/filereader"
	"github.com/cardinalhq/tablesort/internal/logctx"
	"github.com/cardinalhq/tablesort/internal/rowsink"
)

// sortOptions are the sort command's inputs that are not part of
// extsort.Config.
type sortOptions struct {
	Input           string
	Output          string // "" or "-" writes to Stdout
	Format          string // output format when writing to Stdout
	KeyColumn       string
	OutputKeyColumn string
	Types           []string
	BatchSize       int
	ProgressStep    float64

	Stdout io.Writer
}

func init() {
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort a CSV or Parquet file by columns",
		Example: `  tablesort sort --input data.csv --by Class,Feature1 --output sorted.csv
  tablesort sort --input data.parquet --by score --projection sort-columns --format jsonl`,
		RunE: func(c *cobra.Command, _ []string) error {
			configFile, err := c.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			if err := applySortFlags(c.Flags(), &cfg.Sort); err != nil {
				return err
			}
			opts, err := sortOptionsFromFlags(c.Flags())
			if err != nil {
				return err
			}
			opts.Stdout = c.OutOrStdout()

			ctx, shutdown, err := setupTelemetry("tablesort", cfg.Log)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			_, err = runSort(ctx, cfg.Sort, opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Input file (.csv, .csv.gz or .parquet)")
	flags.StringSlice("by", nil, "Sort columns, most significant first")
	flags.String("output", "-", "Output file (.csv, .jsonl, .parquet, optionally .gz); - for stdout")
	flags.String("format", string(rowsink.FormatCSV), "Output format when writing to stdout")
	flags.String("key-column", "", "Input column to carry as the row key")
	flags.String("output-key-column", rowsink.DefaultKeyColumn, "Name of the row key column in the output")
	flags.StringSlice("type", nil, "Force a column kind, as column=kind (int, float, string, time, bool)")
	flags.Int("batch-size", filereader.DefaultBatchSize, "Rows per input batch")
	flags.Float64("progress-step", 0.1, "Log progress every time this fraction completes")

	flags.String("projection", "", "Columns to emit: all or sort-columns")
	flags.Int("max-open-chunks", 0, "Most temporary chunks held open at once")
	flags.Int("max-rows-per-chunk", 0, "Most rows buffered before a chunk is written")
	flags.Int("consolidate-to", 0, "Chunks left after a consolidation pass")
	flags.Float64("memory-threshold", 0, "Spill when free memory falls below this fraction")
	flags.String("memory-source", "", "Memory measured by --memory-threshold: heap or system")
	flags.Bool("async-spill", false, "Write chunks on a background goroutine")
	flags.String("temp-dir", "", "Directory for temporary chunks")
	flags.String("codec", "", "Chunk record codec: cbor or gob")
	flags.String("compression-level", "", "Chunk zstd level: fastest, default, better or best")
	flags.Uint64("min-free-disk", 0, "Refuse to write chunks below this many free bytes")

	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(fmt.Errorf("failed to mark input flag as required: %w", err))
	}

	rootCmd.AddCommand(cmd)
}

// applySortFlags copies the flags the user set over cfg.
func applySortFlags(flags *pflag.FlagSet, cfg *extsort.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}
	set("by", func() (e error) { cfg.SortColumns, e = flags.GetStringSlice("by"); return })
	set("projection", func() error {
		p, e := flags.GetString("projection")
		cfg.Projection = extsort.Projection(p)
		return e
	})
	set("max-open-chunks", func() (e error) { cfg.MaxOpenChunks, e = flags.GetInt("max-open-chunks"); return })
	set("max-rows-per-chunk", func() (e error) { cfg.MaxRowsPerChunk, e = flags.GetInt("max-rows-per-chunk"); return })
	set("consolidate-to", func() (e error) { cfg.ConsolidateTo, e = flags.GetInt("consolidate-to"); return })
	set("memory-threshold", func() (e error) { cfg.MemoryThreshold, e = flags.GetFloat64("memory-threshold"); return })
	set("memory-source", func() (e error) { cfg.MemorySource, e = flags.GetString("memory-source"); return })
	set("async-spill", func() (e error) { cfg.AsyncSpill, e = flags.GetBool("async-spill"); return })
	set("temp-dir", func() (e error) { cfg.TempDir, e = flags.GetString("temp-dir"); return })
	set("codec", func() (e error) { cfg.Codec, e = flags.GetString("codec"); return })
	set("compression-level", func() (e error) { cfg.CompressionLevel, e = flags.GetString("compression-level"); return })
	set("min-free-disk", func() (e error) { cfg.MinFreeDiskBytes, e = flags.GetUint64("min-free-disk"); return })
	if err != nil {
		return err
	}

	// A smaller cap invalidates the derived consolidation target.
	if flags.Changed("max-open-chunks") && !flags.Changed("consolidate-to") {
		cfg.ConsolidateTo = 0
	}
	*cfg = cfg.WithDefaults()
	return nil
}

func sortOptionsFromFlags(flags *pflag.FlagSet) (sortOptions, error) {
	var opts sortOptions
	var err error
	get := func(dst *string, name string) {
		if err == nil {
			*dst, err = flags.GetString(name)
		}
	}
	get(&opts.Input, "input")
	get(&opts.Output, "output")
	get(&opts.Format, "format")
	get(&opts.KeyColumn, "key-column")
	get(&opts.OutputKeyColumn, "output-key-column")
	if err != nil {
		return opts, err
	}
	if opts.Types, err = flags.GetStringSlice("type"); err != nil {
		return opts, err
	}
	if opts.BatchSize, err = flags.GetInt("batch-size"); err != nil {
		return opts, err
	}
	opts.ProgressStep, err = flags.GetFloat64("progress-step")
	return opts, err
}

func toStdout(output string) bool {
	return output == "" || output == "-"
}

// runSort sorts opts.Input into opts.Output. A failed sort leaves no output
// file behind.
func runSort(ctx context.Context, cfg extsort.Config, opts sortOptions) (summary extsort.Summary, err error) {
	if len(cfg.SortColumns) == 0 {
		return summary, errors.New("no sort columns: pass --by or set sort.sort_columns")
	}
	types, err := filereader.ParseTypes(opts.Types)
	if err != nil {
		return summary, err
	}

	reader, err := filereader.Open(opts.Input, filereader.Options{
		BatchSize: opts.BatchSize,
		KeyColumn: opts.KeyColumn,
		Types:     types,
	})
	if err != nil {
		return summary, err
	}
	defer func() { _ = reader.Close() }()

	sorter, err := extsort.NewSorter(cfg)
	if err != nil {
		return summary, err
	}
	outSchema, err := sorter.OutputSchema(reader.Schema())
	if err != nil {
		return summary, err
	}

	sinkOpts := rowsink.Options{KeyColumn: opts.OutputKeyColumn}
	var sink rowsink.Sink
	if toStdout(opts.Output) {
		format, ferr := rowsink.ParseFormat(opts.Format)
		if ferr != nil {
			return summary, ferr
		}
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		sink, err = rowsink.New(stdout, format, outSchema, sinkOpts)
	} else {
		sink, err = rowsink.Create(opts.Output, outSchema, sinkOpts)
	}
	if err != nil {
		return summary, err
	}

	logger := logctx.FromContext(ctx)
	logger.Info("Sorting",
		slog.String("input", opts.Input),
		slog.String("output", opts.Output),
		slog.Any("by", cfg.SortColumns),
		slog.String("schema", reader.Schema().String()))

	monitor := &extsort.LogMonitor{Logger: logger, Step: opts.ProgressStep}
	summary, err = sorter.Sort(ctx, reader, sink, monitor)
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil && !toStdout(opts.Output) {
		if rerr := os.Remove(opts.Output); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			logger.Warn("Failed to remove partial output", slog.String("path", opts.Output), slog.Any("error", rerr))
		}
	}
	return summary, err
}
