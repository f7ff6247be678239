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
	"io"
	"strings"

	"github.com/cardinalhq/tablesort/internal/cbor"
	"github.com/cardinalhq/tablesort/internal/gob"
	"github.com/cardinalhq/tablesort/internal/pipeline"
)

const (
	CodecCBOR = "cbor"
	CodecGob  = "gob"
)

type recordEncoder interface {
	Encode(seq uint64, row pipeline.Row) error
}

type recordDecoder interface {
	Decode() (uint64, pipeline.Row, error)
}

// Codec turns records into bytes. Use NewCodec to get one.
type Codec interface {
	Name() string
	newEncoder(w io.Writer) recordEncoder
	newDecoder(r io.Reader, schema *pipeline.Schema) recordDecoder
}

// NewCodec returns the codec called name. An empty name selects CBOR.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecCBOR:
		cfg, err := cbor.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create CBOR config: %w", err)
		}
		return cborCodec{cfg: cfg}, nil
	case CodecGob:
		cfg, err := gob.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create gob config: %w", err)
		}
		return gobCodec{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("unknown chunk codec %q", name)
}

type cborCodec struct {
	cfg *cbor.Config
}

func (cborCodec) Name() string { return CodecCBOR }

func (c cborCodec) newEncoder(w io.Writer) recordEncoder {
	return c.cfg.NewRecordEncoder(w)
}

func (c cborCodec) newDecoder(r io.Reader, schema *pipeline.Schema) recordDecoder {
	return c.cfg.NewRecordDecoder(r, schema)
}

type gobCodec struct {
	cfg *gob.Config
}

func (gobCodec) Name() string { return CodecGob }

func (c gobCodec) newEncoder(w io.Writer) recordEncoder {
	return c.cfg.NewRecordEncoder(w)
}

func (c gobCodec) newDecoder(r io.Reader, schema *pipeline.Schema) recordDecoder {
	return c.cfg.NewRecordDecoder(r, schema)
}

// decodeRecord maps a codec result onto the reader contract: io.EOF only on
// a clean end with every record seen, ErrCorrupt for anything else.
func decodeRecord(dec recordDecoder, f *SpillFile, seen *int64) (Record, error) {
	seq, row, err := dec.Decode()
	if err == io.EOF {
		if *seen != f.Rows {
			return Record{}, fmt.Errorf("%w: chunk %s ended after %d of %d rows", ErrCorrupt, f.ID, *seen, f.Rows)
		}
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: chunk %s record %d: %v", ErrCorrupt, f.ID, *seen, err)
	}
	*seen++
	if *seen > f.Rows {
		return Record{}, fmt.Errorf("%w: chunk %s has more than %d rows", ErrCorrupt, f.ID, f.Rows)
	}
	return Record{Seq: seq, Row: row}, nil
}
