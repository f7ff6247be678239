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

// Package cbor encodes chunk records with CBOR.
//
// A record is a three element array [seq, key, cells], and each cell is
// itself an array [present, num, str]. Cell kinds are not written; the
// decoder restores them from the chunk schema. Floats travel as their IEEE
// bits in num, so NaN payloads and signed zeros survive the round trip.
package cbor

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/cardinalhq/tablesort/internal/pipeline"
)

// Config holds CBOR encoder and decoder configurations for chunk records.
type Config struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewConfig creates a new CBOR configuration for chunk records.
func NewConfig() (*Config, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		BigIntDec: cbor.BigIntDecodeValue,
		IntDec:    cbor.IntDecConvertSigned,
		UTF8:      cbor.UTF8DecodeInvalid, // row keys and strings are opaque bytes
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Config{
		encMode: encMode,
		decMode: decMode,
	}, nil
}

// NewEncoder creates a new CBOR encoder using the record configuration.
func (c *Config) NewEncoder(w io.Writer) *cbor.Encoder {
	return c.encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder using the record configuration.
func (c *Config) NewDecoder(r io.Reader) *cbor.Decoder {
	return c.decMode.NewDecoder(r)
}

type wireCell struct {
	_       struct{} `cbor:",toarray"`
	Present bool
	Num     int64
	Str     string
}

type wireRecord struct {
	_     struct{} `cbor:",toarray"`
	Seq   uint64
	Key   string
	Cells []wireCell
}

// RecordEncoder writes records to a stream.
type RecordEncoder struct {
	enc *cbor.Encoder
	rec wireRecord
}

// NewRecordEncoder returns an encoder writing records to w.
func (c *Config) NewRecordEncoder(w io.Writer) *RecordEncoder {
	return &RecordEncoder{enc: c.NewEncoder(w)}
}

// Encode writes one record.
func (e *RecordEncoder) Encode(seq uint64, row pipeline.Row) error {
	e.rec.Seq = seq
	e.rec.Key = string(row.Key)
	e.rec.Cells = e.rec.Cells[:0]
	for _, v := range row.Cells {
		num, str := v.Raw()
		e.rec.Cells = append(e.rec.Cells, wireCell{Present: !v.IsMissing(), Num: num, Str: str})
	}
	return e.enc.Encode(&e.rec)
}

// RecordDecoder reads records written by RecordEncoder.
type RecordDecoder struct {
	dec    *cbor.Decoder
	schema *pipeline.Schema
}

// NewRecordDecoder returns a decoder reading records of schema from r.
func (c *Config) NewRecordDecoder(r io.Reader, schema *pipeline.Schema) *RecordDecoder {
	return &RecordDecoder{dec: c.NewDecoder(r), schema: schema}
}

// Decode reads the next record. It returns io.EOF, unwrapped, when the
// stream ends on a record boundary.
func (d *RecordDecoder) Decode() (uint64, pipeline.Row, error) {
	var rec wireRecord
	if err := d.dec.Decode(&rec); err != nil {
		return 0, pipeline.Row{}, err
	}
	if len(rec.Cells) != d.schema.Len() {
		return 0, pipeline.Row{}, fmt.Errorf("record %d has %d cells, schema has %d", rec.Seq, len(rec.Cells), d.schema.Len())
	}

	cells := make([]pipeline.Value, len(rec.Cells))
	for i, wc := range rec.Cells {
		cells[i] = pipeline.FromRaw(d.schema.Column(i).Kind, wc.Present, wc.Num, wc.Str)
	}
	return rec.Seq, pipeline.Row{Key: pipeline.RowKey(rec.Key), Cells: cells}, nil
}
