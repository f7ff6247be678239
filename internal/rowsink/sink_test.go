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

package rowsink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/filereader"
	"github.com/cardinalhq/tablesort/internal/pipeline"
)

func sinkSchema() *pipeline.Schema {
	return pipeline.MustSchema(
		pipeline.NewColumn("n", pipeline.KindInt),
		pipeline.NewColumn("name", pipeline.KindString),
		pipeline.NewColumn("score", pipeline.KindFloat),
		pipeline.NewColumn("ok", pipeline.KindBool),
		pipeline.NewColumn("when", pipeline.KindTime),
	)
}

var t0 = time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)

func sinkRows() []pipeline.Row {
	return []pipeline.Row{
		pipeline.NewRow("Row0", pipeline.IntValue(1), pipeline.StringValue("a,b"), pipeline.FloatValue(0.5), pipeline.BoolValue(true), pipeline.TimeValue(t0)),
		pipeline.NewRow("Row1", pipeline.IntValue(2), pipeline.Missing(pipeline.KindString), pipeline.FloatValue(-3), pipeline.BoolValue(false), pipeline.Missing(pipeline.KindTime)),
	}
}

func feed(t *testing.T, s Sink, rows []pipeline.Row) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rows {
		require.NoError(t, s.Consume(ctx, r))
	}
	require.NoError(t, s.Done(ctx))
	require.NoError(t, s.Close())
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, FormatCSV, sinkSchema(), Options{})
	require.NoError(t, err)
	feed(t, s, sinkRows())

	want := "RowID,n,name,score,ok,when\n" +
		"Row0,1,\"a,b\",0.5,true,2024-05-06T07:08:09.00000001Z\n" +
		"Row1,2,,-3,false,\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVSink_EmptyInputWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVSink(&buf, sinkSchema(), Options{KeyColumn: "id"})
	feed(t, s, nil)
	assert.Equal(t, "id,n,name,score,ok,when\n", buf.String())
}

func TestJSONLinesSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(&buf, FormatJSONLines, sinkSchema(), Options{KeyColumn: "id"})
	require.NoError(t, err)
	feed(t, s, sinkRows())

	want := `{"id":"Row0","n":1,"name":"a,b","score":0.5,"ok":true,"when":"2024-05-06T07:08:09.00000001Z"}` + "\n" +
		`{"id":"Row1","n":2,"name":null,"score":-3,"ok":false,"when":null}` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestSinks_RejectWrongWidth(t *testing.T) {
	bad := pipeline.NewRow("x", pipeline.IntValue(1))
	for _, f := range []Format{FormatCSV, FormatJSONLines, FormatParquet} {
		t.Run(string(f), func(t *testing.T) {
			s, err := New(io.Discard, f, sinkSchema(), Options{})
			require.NoError(t, err)
			assert.ErrorContains(t, s.Consume(context.Background(), bad), "has 1 cells")
			_ = s.Close()
		})
	}
}

func TestCreate_RoundTripThroughReader(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.csv", "out.csv.gz", "out.parquet"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			s, err := Create(path, sinkSchema(), Options{KeyColumn: "id"})
			require.NoError(t, err)
			feed(t, s, sinkRows())
			assert.NoError(t, s.Close())

			r, err := filereader.Open(path, filereader.Options{
				KeyColumn: "id",
				Types:     map[string]pipeline.Kind{"name": pipeline.KindString, "when": pipeline.KindTime, "ok": pipeline.KindBool, "n": pipeline.KindInt, "score": pipeline.KindFloat},
			})
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			var got []pipeline.Row
			for {
				b, err := r.Next(context.Background())
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				got = append(got, b.Rows()...)
				pipeline.ReturnBatch(b)
			}
			require.Len(t, got, 2)

			schema := r.Schema()
			cell := func(row int, col string) pipeline.Value { return got[row].Cell(schema.Index(col)) }
			assert.Equal(t, pipeline.RowKey("Row1"), got[1].Key)
			assert.Equal(t, "a,b", cell(0, "name").Str())
			assert.True(t, cell(1, "name").IsMissing())
			assert.Equal(t, -3.0, cell(1, "score").Float())
			assert.Equal(t, int64(2), cell(1, "n").Int())
			assert.True(t, cell(0, "ok").Bool())
			assert.True(t, cell(0, "when").Time().Equal(t0))
			assert.True(t, cell(1, "when").IsMissing())
		})
	}
}

func TestFormatForFile(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		gz      bool
		wantErr bool
	}{
		{"a.csv", FormatCSV, false, false},
		{"a.CSV.gz", FormatCSV, true, false},
		{"a.jsonl", FormatJSONLines, false, false},
		{"a.json.gz", FormatJSONLines, true, false},
		{"a.parquet", FormatParquet, false, false},
		{"a.parquet.gz", "", false, true},
		{"a.xlsx", "", false, true},
		{"noext", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, gz, err := FormatForFile(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.gz, gz)
		})
	}
}

func TestMemorySinks(t *testing.T) {
	c := &Collecting{}
	feed(t, c, sinkRows())
	assert.Len(t, c.Rows, 2)
	assert.True(t, c.Finished())

	n := &Counting{}
	feed(t, n, sinkRows())
	assert.Equal(t, int64(2), n.Count())
}
