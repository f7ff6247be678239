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
	"strconv"
	"time"

	"github.com/cardinalhq/tablesort/internal/pipeline/wkk"
)

// AppendRowJSON appends row as a JSON object to buf. The row key is written
// under "_key"; the remaining members follow schema order. Missing cells are
// null, non-finite floats are written as strings.
func AppendRowJSON(buf []byte, schema *Schema, row Row) []byte {
	return AppendRowJSONKeyed(buf, "_key", schema, row)
}

// AppendRowJSONKeyed is AppendRowJSON with the key stored under keyName.
func AppendRowJSONKeyed(buf []byte, keyName string, schema *Schema, row Row) []byte {
	buf = append(buf, '{', '"')
	buf = appendEscapedString(buf, keyName)
	buf = append(buf, '"', ':', '"')
	buf = appendEscapedString(buf, string(row.Key))
	buf = append(buf, '"')

	for i, cell := range row.Cells {
		buf = append(buf, ',', '"')
		buf = appendEscapedString(buf, wkk.ColumnNameValue(schema.Column(i).Name))
		buf = append(buf, '"', ':')
		buf = appendValueJSON(buf, cell)
	}

	return append(buf, '}')
}

func appendValueJSON(buf []byte, v Value) []byte {
	if v.IsMissing() {
		return append(buf, "null"...)
	}
	switch v.Kind() {
	case KindInt:
		return strconv.AppendInt(buf, v.Int(), 10)
	case KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf = append(buf, '"')
			buf = strconv.AppendFloat(buf, f, 'g', -1, 64)
			return append(buf, '"')
		}
		return strconv.AppendFloat(buf, f, 'g', -1, 64)
	case KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case KindTime:
		buf = append(buf, '"')
		buf = v.Time().AppendFormat(buf, time.RFC3339Nano)
		return append(buf, '"')
	default:
		buf = append(buf, '"')
		buf = appendEscapedString(buf, v.Str())
		return append(buf, '"')
	}
}

// appendEscapedString appends s to buf with JSON string escaping
func appendEscapedString(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			buf = append(buf, '\\', c)
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if c < 0x20 {
				buf = append(buf, '\\', 'u', '0', '0', hexDigit(c>>4), hexDigit(c&0xF))
			} else {
				buf = append(buf, c)
			}
		}
	}
	return buf
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}
