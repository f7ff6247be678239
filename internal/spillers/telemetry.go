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

package spillers

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	chunksCreatedCounter  otelmetric.Int64Counter
	chunksReleasedCounter otelmetric.Int64Counter
	bytesWrittenCounter   otelmetric.Int64Counter
	exhaustedCounter      otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tablesort/internal/spillers")

	var err error
	chunksCreatedCounter, err = meter.Int64Counter(
		"tablesort.spill.chunks.created",
		otelmetric.WithDescription("Number of chunks sealed by spillers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks.created counter: %w", err))
	}

	chunksReleasedCounter, err = meter.Int64Counter(
		"tablesort.spill.chunks.released",
		otelmetric.WithDescription("Number of chunks released by spillers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create chunks.released counter: %w", err))
	}

	bytesWrittenCounter, err = meter.Int64Counter(
		"tablesort.spill.bytes.written",
		otelmetric.WithDescription("Bytes of chunk data written by spillers"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create bytes.written counter: %w", err))
	}

	exhaustedCounter, err = meter.Int64Counter(
		"tablesort.spill.exhausted",
		otelmetric.WithDescription("Number of chunk allocations refused for lack of space or budget"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create spill.exhausted counter: %w", err))
	}
}

func backendAttr(name string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("backend", name))
}
