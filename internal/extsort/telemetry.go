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

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsIngestedCounter  otelmetric.Int64Counter
	rowsEmittedCounter   otelmetric.Int64Counter
	chunksSpilledCounter otelmetric.Int64Counter
	consolidationCounter otelmetric.Int64Counter
	sortsCounter         otelmetric.Int64Counter
	sortDuration         otelmetric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tablesort/internal/extsort")

	var err error
	rowsIngestedCounter, err = meter.Int64Counter(
		"tablesort.sort.rows.in",
		otelmetric.WithDescription("Number of rows read into sorts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.in counter: %w", err))
	}

	rowsEmittedCounter, err = meter.Int64Counter(
		"tablesort.sort.rows.out",
		otelmetric.WithDescription("Number of sorted rows delivered to sinks"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.out counter: %w", err))
	}

	chunksSpilledCounter, err = meter.Int64Counter(
		"tablesort.sort.chunks.spilled",
		otelmetric.WithDescription("Number of chunks written from the in-memory buffer"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks.spilled counter: %w", err))
	}

	consolidationCounter, err = meter.Int64Counter(
		"tablesort.sort.consolidations",
		otelmetric.WithDescription("Number of consolidation passes run to stay under the open chunk cap"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create consolidations counter: %w", err))
	}

	sortsCounter, err = meter.Int64Counter(
		"tablesort.sort.completed",
		otelmetric.WithDescription("Number of sorts finished, by final state"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create sort.completed counter: %w", err))
	}

	sortDuration, err = meter.Float64Histogram(
		"tablesort.sort.duration",
		otelmetric.WithDescription("Wall time of a sort"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create sort.duration histogram: %w", err))
	}
}
