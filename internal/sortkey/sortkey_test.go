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

package sortkey

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

func testSchema() *pipeline.Schema {
	return pipeline.MustSchema(
		pipeline.NewColumn("num", pipeline.KindFloat),
		pipeline.NewColumn("name", pipeline.KindString),
		pipeline.NewColumn("when", pipeline.KindTime),
		pipeline.NewColumn("flag", pipeline.KindBool),
		pipeline.NewColumn("count", pipeline.KindInt),
	)
}

func TestBuild_Errors(t *testing.T) {
	s := testSchema()

	tests := []struct {
		name    string
		schema  *pipeline.Schema
		columns []string
		errMsg  string
	}{
		{"nil schema", nil, []string{"num"}, "no input schema"},
		{"no columns", s, nil, "at least one sort column"},
		{"unknown column", s, []string{"num", "nope"}, `unknown column "nope"`},
		{"duplicate column", s, []string{"num", "num"}, "listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Build(tt.schema, tt.columns)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSortSpec)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Nil(t, c)
		})
	}
}

func TestForKind(t *testing.T) {
	_, ok := ForKind(pipeline.KindInvalid)
	assert.False(t, ok)
	for _, k := range []pipeline.Kind{pipeline.KindInt, pipeline.KindFloat, pipeline.KindString, pipeline.KindTime, pipeline.KindBool} {
		_, ok := ForKind(k)
		assert.True(t, ok, k.String())
	}
}

func TestValueOrdering(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b pipeline.Value
		want int
	}{
		{"int less", pipeline.IntValue(1), pipeline.IntValue(2), -1},
		{"int equal", pipeline.IntValue(2), pipeline.IntValue(2), 0},
		{"float greater", pipeline.FloatValue(2.5), pipeline.FloatValue(-1), 1},
		{"nan first", pipeline.FloatValue(math.NaN()), pipeline.FloatValue(-math.MaxFloat64), -1},
		{"string less", pipeline.StringValue("A"), pipeline.StringValue("B"), -1},
		{"time less", pipeline.TimeValue(t0), pipeline.TimeValue(t0.Add(time.Nanosecond)), -1},
		{"false before true", pipeline.BoolValue(false), pipeline.BoolValue(true), -1},
		{"missing after present", pipeline.Missing(pipeline.KindString), pipeline.StringValue("Z"), 1},
		{"present before missing", pipeline.IntValue(math.MaxInt64), pipeline.Missing(pipeline.KindInt), -1},
		{"missing equal", pipeline.Missing(pipeline.KindFloat), pipeline.Missing(pipeline.KindFloat), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc, ok := ForKind(tt.a.Kind())
			require.True(t, ok)
			assert.Equal(t, tt.want, vc(tt.a, tt.b))
			assert.Equal(t, -tt.want, vc(tt.b, tt.a))
		})
	}
}

func TestComparator_MultiKeyTieBreak(t *testing.T) {
	s := testSchema()
	c, err := Build(s, []string{"count", "name"})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, c.Indices())
	assert.Equal(t, []string{"count", "name"}, c.Columns())
	assert.Equal(t, "asc(count, name)", c.String())

	row := func(count int64, name string) pipeline.Row {
		nameVal := pipeline.StringValue(name)
		if name == "" {
			nameVal = pipeline.Missing(pipeline.KindString)
		}
		return pipeline.NewRow("k",
			pipeline.FloatValue(0), nameVal, pipeline.TimeValue(time.Unix(0, 0)),
			pipeline.BoolValue(false), pipeline.IntValue(count))
	}

	assert.Equal(t, -1, c.Compare(row(1, "z"), row(2, "a")))
	assert.Equal(t, -1, c.Compare(row(2, "a"), row(2, "b")))
	assert.Equal(t, 0, c.Compare(row(2, "a"), row(2, "a")))
	assert.Equal(t, 1, c.Compare(row(2, ""), row(2, "b")))
}

func TestComparator_Projected(t *testing.T) {
	s := testSchema()
	c, err := Build(s, []string{"name", "num"})
	require.NoError(t, err)

	a := pipeline.NewRow("a", pipeline.FloatValue(2), pipeline.StringValue("x"), pipeline.TimeValue(time.Unix(0, 0)), pipeline.BoolValue(true), pipeline.IntValue(1))
	b := pipeline.NewRow("b", pipeline.FloatValue(1), pipeline.StringValue("x"), pipeline.TimeValue(time.Unix(0, 0)), pipeline.BoolValue(true), pipeline.IntValue(1))

	p := c.Projected()
	idx := c.Indices()
	assert.Equal(t, c.Compare(a, b), p.Compare(a.Project(idx), b.Project(idx)))
	assert.Equal(t, 1, p.Compare(a.Project(idx), b.Project(idx)))
}
