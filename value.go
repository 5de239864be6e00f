package hellotrace

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the type held by a Value.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindString
	KindBool
	KindInt64
	KindFloat64
	KindTime
)

// Value is a tag or log field value. It holds exactly one of
// string, bool, int64, float64 or time.Time.
type Value struct {
	t    time.Time
	s    string
	n    int64
	f    float64
	kind Kind
}

// String creates a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bool creates a bool value.
func Bool(v bool) Value {
	var n int64
	if v {
		n = 1
	}
	return Value{kind: KindBool, n: n}
}

// Int creates an integer value.
func Int(v int) Value { return Value{kind: KindInt64, n: int64(v)} }

// Int64 creates an integer value.
func Int64(v int64) Value { return Value{kind: KindInt64, n: v} }

// Float64 creates a floating point value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Time creates a timestamp value.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// ValueOf converts v to a Value. Types outside the closed set are
// stored as their fmt representation.
func ValueOf(v interface{}) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(x)
	case int8:
		return Int64(int64(x))
	case int16:
		return Int64(int64(x))
	case int32:
		return Int64(int64(x))
	case int64:
		return Int64(x)
	case uint8:
		return Int64(int64(x))
	case uint16:
		return Int64(int64(x))
	case uint32:
		return Int64(int64(x))
	case uint:
		return uintValue(uint64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return Float64(float64(x))
	case float64:
		return Float64(x)
	case time.Time:
		return Time(x)
	case error:
		return String(x.Error())
	case fmt.Stringer:
		return String(x.String())
	case nil:
		return String("")
	default:
		return String(fmt.Sprint(x))
	}
}

func uintValue(v uint64) Value {
	if v > 1<<63-1 {
		return String(strconv.FormatUint(v, 10))
	}
	return Int64(int64(v))
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string held by v, or "" for other kinds.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// AsBool returns the bool held by v.
func (v Value) AsBool() bool { return v.kind == KindBool && v.n == 1 }

// AsInt64 returns the integer held by v.
func (v Value) AsInt64() int64 {
	if v.kind != KindInt64 {
		return 0
	}
	return v.n
}

// AsFloat64 returns the float held by v.
func (v Value) AsFloat64() float64 {
	if v.kind != KindFloat64 {
		return 0
	}
	return v.f
}

// AsTime returns the timestamp held by v.
func (v Value) AsTime() time.Time {
	if v.kind != KindTime {
		return time.Time{}
	}
	return v.t
}

// AsInterface returns the held value as a plain Go value.
func (v Value) AsInterface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.AsBool()
	case KindInt64:
		return v.n
	case KindFloat64:
		return v.f
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindInt64:
		return strconv.FormatInt(v.n, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its native JSON scalar. Non-finite
// floats have no JSON number form and are encoded as the strings "NaN",
// "+Inf" and "-Inf".
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat64 {
		switch {
		case math.IsNaN(v.f):
			return []byte(`"NaN"`), nil
		case math.IsInf(v.f, 1):
			return []byte(`"+Inf"`), nil
		case math.IsInf(v.f, -1):
			return []byte(`"-Inf"`), nil
		}
	}
	return json.Marshal(v.AsInterface())
}

// Field is a key/value pair in a span log entry.
type Field struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// F creates a Field, converting value with ValueOf.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: ValueOf(value)}
}

// LogRecord is one timestamped span log entry.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Fields    []Field   `json:"fields"`
}
