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
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ParseCompressionLevel maps "fastest", "default", "better" or "best" to a
// zstd level. An empty name selects fastest.
func ParseCompressionLevel(name string) (zstd.EncoderLevel, error) {
	if name == "" {
		return zstd.SpeedFastest, nil
	}
	ok, level := zstd.EncoderLevelFromString(name)
	if !ok {
		return 0, fmt.Errorf("unknown compression level %q", name)
	}
	return level, nil
}

// zstd encoders carry large history buffers, so they are pooled per level
// and reset onto each new chunk.
var encoderPools sync.Map // map[zstd.EncoderLevel]*sync.Pool

func getEncoderPool(level zstd.EncoderLevel) *sync.Pool {
	if pool, ok := encoderPools.Load(level); ok {
		return pool.(*sync.Pool)
	}

	newPool := &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(level),
				zstd.WithEncoderConcurrency(1),
			)
			return enc
		},
	}

	actual, _ := encoderPools.LoadOrStore(level, newPool)
	return actual.(*sync.Pool)
}

func getEncoder(level zstd.EncoderLevel, w io.Writer) *zstd.Encoder {
	enc := getEncoderPool(level).Get().(*zstd.Encoder)
	enc.Reset(w)
	return enc
}

// putEncoder returns a closed encoder. It must not be referenced afterwards.
func putEncoder(level zstd.EncoderLevel, enc *zstd.Encoder) {
	enc.Reset(nil)
	getEncoderPool(level).Put(enc)
}

// newDecoder makes a synchronous stream decoder, one per open chunk.
func newDecoder(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
}
