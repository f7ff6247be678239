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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the declared type of a column and of every cell stored in it.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindString
	KindTime
	KindBool
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindTime:    "time",
	KindBool:    "bool",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name (as printed by Kind.String) back to a Kind.
// A few common aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "int64", "integer", "long":
		return KindInt, nil
	case "float", "float64", "double", "number":
		return KindFloat, nil
	case "string", "text", "str":
		return KindString, nil
	case "time", "timestamp", "datetime":
		return KindTime, nil
	case "bool", "boolean":
		return KindBool, nil
	}
	return KindInvalid, fmt.Errorf("unknown column kind %q", s)
}

// Value is a single typed cell. The zero Value is a missing cell of
// KindInvalid; use Missing to produce a missing cell of a specific kind.
//
// Values are immutable. Integer, time (unix nanoseconds) and bool payloads
// share the num field; floats are stored by bit pattern so the struct stays
// comparable.
type Value struct {
	kind    Kind
	present bool
	num     int64
	str     string
}

// Missing returns a missing cell for a column of kind k.
func Missing(k Kind) Value {
	return Value{kind: k}
}

func IntValue(v int64) Value {
	return Value{kind: KindInt, present: true, num: v}
}

func FloatValue(v float64) Value {
	return Value{kind: KindFloat, present: true, num: int64(math.Float64bits(v))}
}

func StringValue(v string) Value {
	return Value{kind: KindString, present: true, str: v}
}

// TimeValue stores t with nanosecond precision in UTC.
func TimeValue(t time.Time) Value {
	return Value{kind: KindTime, present: true, num: t.UnixNano()}
}

func BoolValue(v bool) Value {
	var n int64
	if v {
		n = 1
	}
	return Value{kind: KindBool, present: true, num: n}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsMissing() bool { return !v.present }
func (v Value) Int() int64      { return v.num }
func (v Value) Float() float64  { return math.Float64frombits(uint64(v.num)) }
func (v Value) Str() string     { return v.str }
func (v Value) Bool() bool      { return v.num != 0 }
func (v Value) UnixNano() int64 { return v.num }
func (v Value) Time() time.Time { return time.Unix(0, v.num).UTC() }

// Raw returns the payload fields used by row codecs: the integer-like
// payload (including float bits) and the string payload.
func (v Value) Raw() (num int64, str string) {
	return v.num, v.str
}

// FromRaw rebuilds a Value from the fields returned by Raw.
func FromRaw(k Kind, present bool, num int64, str string) Value {
	if !present {
		return Missing(k)
	}
	return Value{kind: k, present: true, num: num, str: str}
}

// Any returns the cell as a plain Go value, or nil when missing.
func (v Value) Any() any {
	if !v.present {
		return nil
	}
	switch v.kind {
	case KindInt:
		return v.num
	case KindFloat:
		return v.Float()
	case KindString:
		return v.str
	case KindTime:
		return v.Time()
	case KindBool:
		return v.Bool()
	}
	return nil
}

// String renders the cell for text output. Missing cells render as "".
func (v Value) String() string {
	if !v.present {
		return ""
	}
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return v.str
	case KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	}
	return ""
}

// ParseValue converts text into a cell of kind k. Empty text is a missing cell.
func ParseValue(k Kind, s string) (Value, error) {
	if s == "" {
		return Missing(k), nil
	}
	switch k {
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, err
		}
		return IntValue(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case KindString:
		return StringValue(s), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return Value{}, err
		}
		return TimeValue(t), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	}
	return Value{}, fmt.Errorf("cannot parse into %s", k)
}

// Coerce converts a decoded Go value (as produced by format readers) into a
// cell of kind k. nil becomes a missing cell.
func Coerce(k Kind, raw any) (Value, error) {
	if raw == nil {
		return Missing(k), nil
	}
	switch k {
	case KindInt:
		switch x := raw.(type) {
		case int64:
			return IntValue(x), nil
		case int32:
			return IntValue(int64(x)), nil
		case int:
			return IntValue(int64(x)), nil
		case uint32:
			return IntValue(int64(x)), nil
		case uint64:
			if x > math.MaxInt64 {
				return Value{}, fmt.Errorf("uint64 %d overflows int column", x)
			}
			return IntValue(int64(x)), nil
		}
	case KindFloat:
		switch x := raw.(type) {
		case float64:
			return FloatValue(x), nil
		case float32:
			return FloatValue(float64(x)), nil
		case int64:
			return FloatValue(float64(x)), nil
		case int32:
			return FloatValue(float64(x)), nil
		case int:
			return FloatValue(float64(x)), nil
		}
	case KindString:
		switch x := raw.(type) {
		case string:
			return StringValue(x), nil
		case []byte:
			return StringValue(string(x)), nil
		}
	case KindTime:
		switch x := raw.(type) {
		case time.Time:
			return TimeValue(x), nil
		case int64:
			return TimeValue(time.Unix(0, x)), nil
		}
	case KindBool:
		if x, ok := raw.(bool); ok {
			return BoolValue(x), nil
		}
	}
	return Value{}, fmt.Errorf("cannot coerce %T into %s", raw, k)
}
