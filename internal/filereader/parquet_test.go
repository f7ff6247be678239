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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

func testParquetSchema() *parquet.Schema {
	return parquet.NewSchema("rows", parquet.Group{
		"id":    parquet.String(),
		"score": parquet.Leaf(parquet.DoubleType),
		"count": parquet.Optional(parquet.Int(64)),
		"ok":    parquet.Leaf(parquet.BooleanType),
	})
}

func writeParquet(t *testing.T, rows []map[string]any) string {
	t.Helper()
	var buf bytes.Buffer
	pw := parquet.NewWriter(&buf, testParquetSchema())
	for _, row := range rows {
		require.NoError(t, pw.Write(row))
	}
	require.NoError(t, pw.Close())

	path := filepath.Join(t.TempDir(), "rows.parquet")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func parquetFixture() []map[string]any {
	return []map[string]any{
		{"id": "a", "score": 2.5, "count": int64(3), "ok": true},
		{"id": "b", "score": -1.0, "ok": false},
		{"id": "c", "score": 7.0, "count": int64(1), "ok": true},
	}
}

func TestParquetReader(t *testing.T) {
	r, err := Open(writeParquet(t, parquetFixture()), Options{BatchSize: 2})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, int64(3), r.RowCount())
	schema := r.Schema()
	require.Equal(t, 4, schema.Len())
	assert.Equal(t, pipeline.KindString, schema.Column(schema.Index("id")).Kind)
	assert.Equal(t, pipeline.KindFloat, schema.Column(schema.Index("score")).Kind)
	assert.Equal(t, pipeline.KindInt, schema.Column(schema.Index("count")).Kind)
	assert.Equal(t, pipeline.KindBool, schema.Column(schema.Index("ok")).Kind)

	rows := readAll(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, pipeline.RowKey("Row1"), rows[1].Key)
	assert.Equal(t, "b", rows[1].Cell(schema.Index("id")).Str())
	assert.Equal(t, -1.0, rows[1].Cell(schema.Index("score")).Float())
	assert.True(t, rows[1].Cell(schema.Index("count")).IsMissing())
	assert.Equal(t, int64(1), rows[2].Cell(schema.Index("count")).Int())
	for _, row := range rows {
		assert.NoError(t, schema.Validate(row))
	}
}

func TestParquetReader_KeyColumnAndOverride(t *testing.T) {
	r, err := Open(writeParquet(t, parquetFixture()), Options{
		KeyColumn: "id",
		Types:     map[string]pipeline.Kind{"count": pipeline.KindFloat},
	})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	schema := r.Schema()
	assert.Equal(t, -1, schema.Index("id"))
	assert.Equal(t, pipeline.KindFloat, schema.Column(schema.Index("count")).Kind)

	rows := readAll(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, pipeline.RowKey("c"), rows[2].Key)
	assert.Equal(t, 3.0, rows[0].Cell(schema.Index("count")).Float())
}

func TestParquetReader_Errors(t *testing.T) {
	path := writeParquet(t, parquetFixture())

	_, err := Open(path, Options{KeyColumn: "nope"})
	assert.ErrorContains(t, err, `key column "nope"`)

	_, err = Open(path, Options{Types: map[string]pipeline.Kind{"ok": pipeline.KindTime}})
	assert.ErrorContains(t, err, "cannot read as time")

	_, err = Open(writeFile(t, "junk.parquet", "not parquet"), Options{})
	assert.ErrorContains(t, err, "failed to open parquet file")
}
