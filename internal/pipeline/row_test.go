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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowProject(t *testing.T) {
	row := NewRow("r1", IntValue(1), StringValue("a"), FloatValue(2.5))

	p := row.Project([]int{2, 0})

	assert.Equal(t, RowKey("r1"), p.Key)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, 2.5, p.Cell(0).Float())
	assert.Equal(t, int64(1), p.Cell(1).Int())

	// The source row keeps its cells.
	assert.Equal(t, 3, row.Len())
	assert.Equal(t, "a", row.Cell(1).Str())
}

func TestCopyRow(t *testing.T) {
	row := NewRow("r1", IntValue(1))
	cp := CopyRow(row)
	cp.Cells[0] = IntValue(2)
	assert.Equal(t, int64(1), row.Cell(0).Int())
	assert.Equal(t, row.Key, cp.Key)
}

func TestValueRoundTripThroughRaw(t *testing.T) {
	values := []Value{
		IntValue(-7),
		FloatValue(math.Pi),
		StringValue("hello"),
		TimeValue(time.Date(2024, 3, 1, 12, 0, 0, 5, time.UTC)),
		BoolValue(true),
		Missing(KindString),
	}
	for _, v := range values {
		num, str := v.Raw()
		got := FromRaw(v.Kind(), !v.IsMissing(), num, str)
		assert.Equal(t, v, got, "value %v", v)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		kind    Kind
		in      string
		want    Value
		wantErr bool
	}{
		{KindInt, "42", IntValue(42), false},
		{KindInt, " 42 ", IntValue(42), false},
		{KindInt, "x", Value{}, true},
		{KindFloat, "1.5", FloatValue(1.5), false},
		{KindString, "abc", StringValue("abc"), false},
		{KindBool, "true", BoolValue(true), false},
		{KindTime, "2024-01-02T03:04:05Z", TimeValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), false},
		{KindString, "", Missing(KindString), false},
		{KindFloat, "", Missing(KindFloat), false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.kind, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(KindInt, int32(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int())

	v, err = Coerce(KindFloat, float32(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.Float())

	v, err = Coerce(KindString, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", v.Str())

	v, err = Coerce(KindBool, nil)
	require.NoError(t, err)
	assert.True(t, v.IsMissing())
	assert.Equal(t, KindBool, v.Kind())

	_, err = Coerce(KindInt, "nope")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindInt, KindFloat, KindString, KindTime, KindBool} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("blob")
	assert.Error(t, err)
}

func TestAppendRowJSON(t *testing.T) {
	schema := MustSchema(
		NewColumn("n", KindInt),
		NewColumn("s", KindString),
		NewColumn("f", KindFloat),
	)
	row := NewRow("k\"1", IntValue(3), Missing(KindString), FloatValue(math.Inf(1)))

	got := string(AppendRowJSON(nil, schema, row))
	assert.Equal(t, `{"_key":"k\"1","n":3,"s":null,"f":"+Inf"}`, got)
}
