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

// Package gob encodes chunk records with encoding/gob. It carries the same
// record shape as package cbor and exists as the alternative chunk codec.
package gob

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

type gobCell struct {
	Present bool
	Num     int64
	Str     string
}

type gobRecord struct {
	Seq   uint64
	Key   string
	Cells []gobCell
}

// Config holds gob record settings. It has none today.
type Config struct{}

// NewConfig creates a new gob configuration.
func NewConfig() (*Config, error) {
	return &Config{}, nil
}

// RecordEncoder writes records to a stream. Type information is sent once,
// ahead of the first record.
type RecordEncoder struct {
	enc *gob.Encoder
	rec gobRecord
}

// NewRecordEncoder returns an encoder writing records to w.
func (c *Config) NewRecordEncoder(w io.Writer) *RecordEncoder {
	return &RecordEncoder{enc: gob.NewEncoder(w)}
}

// Encode writes one record.
func (e *RecordEncoder) Encode(seq uint64, row pipeline.Row) error {
	e.rec.Seq = seq
	e.rec.Key = string(row.Key)
	e.rec.Cells = e.rec.Cells[:0]
	for _, v := range row.Cells {
		num, str := v.Raw()
		e.rec.Cells = append(e.rec.Cells, gobCell{Present: !v.IsMissing(), Num: num, Str: str})
	}
	return e.enc.Encode(&e.rec)
}

// RecordDecoder reads records written by RecordEncoder.
type RecordDecoder struct {
	dec    *gob.Decoder
	schema *pipeline.Schema
}

// NewRecordDecoder returns a decoder reading records of schema from r.
func (c *Config) NewRecordDecoder(r io.Reader, schema *pipeline.Schema) *RecordDecoder {
	return &RecordDecoder{dec: gob.NewDecoder(r), schema: schema}
}

// Decode reads the next record, returning io.EOF at a clean end of stream.
func (d *RecordDecoder) Decode() (uint64, pipeline.Row, error) {
	// gob skips zero fields, so every record needs a fresh target.
	var rec gobRecord
	if err := d.dec.Decode(&rec); err != nil {
		return 0, pipeline.Row{}, err
	}
	// gob drops empty slices entirely, so a zero-column schema decodes to nil.
	if len(rec.Cells) != d.schema.Len() {
		return 0, pipeline.Row{}, fmt.Errorf("record %d has %d cells, schema has %d", rec.Seq, len(rec.Cells), d.schema.Len())
	}

	cells := make([]pipeline.Value, len(rec.Cells))
	for i, gc := range rec.Cells {
		cells[i] = pipeline.FromRaw(d.schema.Column(i).Kind, gc.Present, gc.Num, gc.Str)
	}
	return rec.Seq, pipeline.Row{Key: pipeline.RowKey(rec.Key), Cells: cells}, nil
}
