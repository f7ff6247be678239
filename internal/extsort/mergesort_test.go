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
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesort/internal/spillers"
)

func drain(t *testing.T, m *Merger) []spillers.Record {
	t.Helper()
	var out []spillers.Record
	for {
		rec, err := m.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestMerger_OrdersAcrossChunks(t *testing.T) {
	s := newMemorySpiller(t)
	schema := intSchema()
	cmp := mustComparator(t, schema, "v")

	chunks := []*spillers.SpillFile{
		writeRecords(t, s, schema, intRecord(0, 1), intRecord(3, 4), intRecord(6, 7)),
		writeRecords(t, s, schema, intRecord(1, 2), intRecord(4, 5)),
		writeRecords(t, s, schema, intRecord(2, 3), intRecord(5, 6), intRecord(7, 8), intRecord(8, 9)),
	}

	m, err := NewMerger(chunks, cmp, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Width())

	got := drain(t, m)
	require.Len(t, got, 9)
	for i, rec := range got {
		assert.Equal(t, int64(i+1), rec.Row.Cell(0).Int())
	}
	assert.Equal(t, int64(9), m.Emitted())

	// Drained chunks are released without Close.
	assert.False(t, s.Stats().Leaked(), s.Stats().String())
	require.NoError(t, m.Close())
	_, err = m.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMerger_TiesFollowSequence(t *testing.T) {
	s := newMemorySpiller(t)
	schema := intSchema()
	cmp := mustComparator(t, schema, "v")

	// Equal keys spread over chunks in an order unrelated to their sequence.
	chunks := []*spillers.SpillFile{
		writeRecords(t, s, schema, intRecord(5, 1), intRecord(9, 1)),
		writeRecords(t, s, schema, intRecord(2, 1), intRecord(7, 1)),
		writeRecords(t, s, schema, intRecord(0, 0), intRecord(1, 1), intRecord(8, 2)),
	}
	m, err := NewMerger(chunks, cmp, nil, 0)
	require.NoError(t, err)

	var seqs []uint64
	for _, rec := range drain(t, m) {
		seqs = append(seqs, rec.Seq)
	}
	assert.Equal(t, []uint64{0, 1, 2, 5, 7, 9, 8}, seqs)
}

func TestMerger_NoChunks(t *testing.T) {
	m, err := NewMerger(nil, mustComparator(t, intSchema(), "v"), nil, 1)
	require.NoError(t, err)
	_, err = m.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMerger_CancelReleasesChunks(t *testing.T) {
	s := newMemorySpiller(t)
	schema := intSchema()
	cmp := mustComparator(t, schema, "v")

	var chunks []*spillers.SpillFile
	seq := uint64(0)
	for c := range 4 {
		var recs []spillers.Record
		for i := range 100 {
			recs = append(recs, intRecord(seq, int64(i*4+c)))
			seq++
		}
		chunks = append(chunks, writeRecords(t, s, schema, recs...))
	}

	cancelled := false
	check := func() error {
		if cancelled {
			return fmt.Errorf("%w: test", ErrCancelled)
		}
		return nil
	}
	const interval = 10
	m, err := NewMerger(chunks, cmp, check, interval)
	require.NoError(t, err)

	emitted := 0
	for {
		_, err := m.Next()
		if err != nil {
			assert.ErrorIs(t, err, ErrCancelled)
			break
		}
		emitted++
		if emitted == 25 {
			cancelled = true
		}
	}
	assert.LessOrEqual(t, emitted, 25+interval)
	assert.False(t, s.Stats().Leaked(), s.Stats().String())
	assert.Equal(t, int64(4), s.Stats().Released)
	require.NoError(t, m.Close())
}

func TestMerger_CorruptChunk(t *testing.T) {
	fs, err := spillers.NewFileSpiller(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = fs.Close() }()
	s := &truncatingSpiller{FileSpiller: fs, skip: 1}

	schema := intSchema()
	var recs []spillers.Record
	for i := range 500 {
		recs = append(recs, intRecord(uint64(i), int64(i)))
	}
	good := writeRecords(t, s, schema, recs[:250]...)
	bad := writeRecords(t, s, schema, recs[250:]...)

	var mergeErr error
	m, err := NewMerger([]*spillers.SpillFile{good, bad}, mustComparator(t, schema, "v"), nil, 16)
	if err != nil {
		mergeErr = err
	} else {
		for mergeErr == nil {
			_, mergeErr = m.Next()
		}
	}
	assert.ErrorIs(t, mergeErr, ErrCorrupt)
	assert.False(t, fs.Stats().Leaked(), fs.Stats().String())
}
