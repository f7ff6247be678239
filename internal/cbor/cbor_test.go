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

package cbor

import (
	"bytes"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

func recordSchema() *pipeline.Schema {
	return pipeline.MustSchema(
		pipeline.NewColumn("i", pipeline.KindInt),
		pipeline.NewColumn("f", pipeline.KindFloat),
		pipeline.NewColumn("s", pipeline.KindString),
		pipeline.NewColumn("t", pipeline.KindTime),
		pipeline.NewColumn("b", pipeline.KindBool),
	)
}

func TestRecordStream(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	rows := []pipeline.Row{
		pipeline.NewRow("r0", pipeline.IntValue(-3), pipeline.FloatValue(math.NaN()), pipeline.StringValue("café"),
			pipeline.TimeValue(time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)), pipeline.BoolValue(true)),
		pipeline.NewRow("", pipeline.Missing(pipeline.KindInt), pipeline.FloatValue(math.Copysign(0, -1)), pipeline.Missing(pipeline.KindString),
			pipeline.Missing(pipeline.KindTime), pipeline.BoolValue(false)),
	}

	var buf bytes.Buffer
	enc := cfg.NewRecordEncoder(&buf)
	for i, row := range rows {
		require.NoError(t, enc.Encode(uint64(100+i), row))
	}

	dec := cfg.NewRecordDecoder(bytes.NewReader(buf.Bytes()), recordSchema())
	for i, want := range rows {
		seq, got, err := dec.Decode()
		require.NoError(t, err)
		assert.Equal(t, uint64(100+i), seq)
		assert.Equal(t, want.Key, got.Key)
		require.Len(t, got.Cells, len(want.Cells))
		for c := range want.Cells {
			wn, ws := want.Cells[c].Raw()
			gn, gs := got.Cells[c].Raw()
			assert.Equal(t, want.Cells[c].Kind(), got.Cells[c].Kind())
			assert.Equal(t, want.Cells[c].IsMissing(), got.Cells[c].IsMissing())
			assert.Equal(t, wn, gn)
			assert.Equal(t, ws, gs)
		}
	}
	_, _, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecordDecoder_SchemaMismatch(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.NewRecordEncoder(&buf).Encode(1, pipeline.NewRow("k", pipeline.IntValue(1))))

	_, _, err = cfg.NewRecordDecoder(&buf, recordSchema()).Decode()
	assert.ErrorContains(t, err, "has 1 cells, schema has 5")
}

func TestRecordDecoder_Truncated(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	row := pipeline.NewRow("key", pipeline.IntValue(1), pipeline.FloatValue(2), pipeline.StringValue("three"),
		pipeline.TimeValue(time.Unix(4, 0)), pipeline.BoolValue(true))
	require.NoError(t, cfg.NewRecordEncoder(&buf).Encode(7, row))

	cut := buf.Bytes()[:buf.Len()-3]
	_, _, err = cfg.NewRecordDecoder(bytes.NewReader(cut), recordSchema()).Decode()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestRecordWireLayout(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	row := pipeline.NewRow("k", pipeline.IntValue(9), pipeline.Missing(pipeline.KindString))
	require.NoError(t, cfg.NewRecordEncoder(&buf).Encode(42, row))

	var raw []any
	require.NoError(t, cfg.NewDecoder(&buf).Decode(&raw))
	require.Len(t, raw, 3)
	assert.EqualValues(t, 42, raw[0])
	assert.Equal(t, "k", raw[1])
	cells, ok := raw[2].([]any)
	require.True(t, ok)
	require.Len(t, cells, 2)
	present, ok := cells[0].([]any)
	require.True(t, ok)
	require.Len(t, present, 3)
	assert.Equal(t, true, present[0])
	assert.EqualValues(t, 9, present[1])
	missing, ok := cells[1].([]any)
	require.True(t, ok)
	assert.Equal(t, false, missing[0])
}
