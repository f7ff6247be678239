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

package filereader

import (
	"strconv"
	"strings"
	"time"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// InferKind guesses the kind of one CSV field. Integers are tried before
// bools so "1" and "0" stay numeric. Empty text says nothing and returns
// KindInvalid.
func InferKind(s string) pipeline.Kind {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return pipeline.KindInvalid
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return pipeline.KindInt
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return pipeline.KindFloat
	}
	switch trimmed {
	case "true", "false", "True", "False", "TRUE", "FALSE":
		return pipeline.KindBool
	}
	if _, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return pipeline.KindTime
	}
	return pipeline.KindString
}

// widen returns the narrowest kind that holds values of both a and b.
// Ints promote to floats; any other mix becomes a string column.
func widen(a, b pipeline.Kind) pipeline.Kind {
	switch {
	case a == pipeline.KindInvalid:
		return b
	case b == pipeline.KindInvalid || a == b:
		return a
	case (a == pipeline.KindInt && b == pipeline.KindFloat) || (a == pipeline.KindFloat && b == pipeline.KindInt):
		return pipeline.KindFloat
	default:
		return pipeline.KindString
	}
}

// kindTracker accumulates the widened kind of every column.
type kindTracker struct {
	kinds []pipeline.Kind
}

func newKindTracker(n int) *kindTracker {
	return &kindTracker{kinds: make([]pipeline.Kind, n)}
}

func (t *kindTracker) observe(record []string) {
	for i, field := range record {
		if t.kinds[i] == pipeline.KindString {
			continue
		}
		t.kinds[i] = widen(t.kinds[i], InferKind(field))
	}
}

// result returns the final kinds; columns with no values are strings.
func (t *kindTracker) result() []pipeline.Kind {
	out := make([]pipeline.Kind, len(t.kinds))
	for i, k := range t.kinds {
		if k == pipeline.KindInvalid {
			k = pipeline.KindString
		}
		out[i] = k
	}
	return out
}
