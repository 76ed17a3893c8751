package value

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind tags which variant of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
	KindTimestamp
	KindDate
	KindUUID
	KindArray
	KindJSON
)

// Value is a tagged union over the engine's scalar and composite types.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	t    time.Time
	arr  []Value
	j    any
}

func Null() Value                    { return Value{kind: KindNull} }
func NewInteger(i int64) Value       { return Value{kind: KindInteger, i: i} }
func NewFloat(f float64) Value       { return Value{kind: KindFloat, f: f} }
func NewText(s string) Value         { return Value{kind: KindText, s: s} }
func NewBoolean(b bool) Value        { return Value{kind: KindBoolean, b: b} }
func NewTimestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }
func NewDate(t time.Time) Value      { return Value{kind: KindDate, t: t.Truncate(24 * time.Hour)} }
func NewUUID(u uuid.UUID) Value      { return Value{kind: KindUUID, s: u.String()} }
func NewArray(elems []Value) Value   { return Value{kind: KindArray, arr: elems} }
func NewJSON(tree any) Value         { return Value{kind: KindJSON, j: tree} }

// NewJSONFromText parses s as JSON and wraps it as a Value.
func NewJSONFromText(s string) (Value, error) {
	var tree any
	if err := json.Unmarshal([]byte(s), &tree); err != nil {
		return Value{}, fmt.Errorf("invalid json format: %s", s)
	}
	return NewJSON(tree), nil
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) TypeName() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBoolean:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindDate:
		return "DATE"
	case KindUUID:
		return "UUID"
	case KindArray:
		return "ARRAY"
	case KindJSON:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

func (v Value) AsBool() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case KindText:
		return v.s != ""
	default:
		return true
	}
}

func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindFloat:
		if !math.IsNaN(v.f) && !math.IsInf(v.f, 0) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return int64(v.f), true
		}
	}
	return 0, false
}

func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if v.kind == KindText || v.kind == KindUUID {
		return v.s, true
	}
	return "", false
}

func (v Value) AsTime() (time.Time, bool) {
	if v.kind == KindTimestamp || v.kind == KindDate {
		return v.t, true
	}
	return time.Time{}, false
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind == KindArray {
		return v.arr, true
	}
	return nil, false
}

func (v Value) AsJSON() (any, bool) {
	if v.kind == KindJSON {
		return v.j, true
	}
	return nil, false
}

// String renders a display form, used by TEXT casts and EXPLAIN output.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText, KindUUID:
		return v.s
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339)
	case KindDate:
		return v.t.Format("2006-01-02")
	case KindArray:
		b, _ := json.Marshal(v.arr)
		return string(b)
	case KindJSON:
		b, _ := json.Marshal(v.j)
		return string(b)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindText, KindUUID:
		return json.Marshal(v.s)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindTimestamp, KindDate:
		return json.Marshal(v.String())
	case KindArray:
		return json.Marshal(v.arr)
	case KindJSON:
		return json.Marshal(v.j)
	}
	return []byte("null"), nil
}

// Compare implements a total ordering: Null sorts last, mixed
// Integer/Float coerce to Float, NaN==NaN.
func (v Value) Compare(other Value) (int, error) {
	if v.kind == KindNull && other.kind == KindNull {
		return 0, nil
	}
	if v.kind == KindNull {
		return 1, nil
	}
	if other.kind == KindNull {
		return -1, nil
	}

	switch {
	case v.kind == KindInteger && other.kind == KindInteger:
		return cmpInt(v.i, other.i), nil
	case (v.kind == KindInteger || v.kind == KindFloat) && (other.kind == KindInteger || other.kind == KindFloat):
		a, _ := v.AsFloat64()
		b, _ := other.AsFloat64()
		return cmpFloatNaN(a, b), nil
	case v.kind == KindText && other.kind == KindText:
		return cmpString(v.s, other.s), nil
	case v.kind == KindBoolean && other.kind == KindBoolean:
		return cmpBool(v.b, other.b), nil
	case v.kind == KindUUID && other.kind == KindUUID:
		return cmpString(v.s, other.s), nil
	case (v.kind == KindTimestamp || v.kind == KindDate) && (other.kind == KindTimestamp || other.kind == KindDate):
		if v.t.Before(other.t) {
			return -1, nil
		}
		if v.t.After(other.t) {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot compare incompatible types: %s and %s", v.TypeName(), other.TypeName())
}

func cmpInt(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// cmpFloatNaN treats NaN as equal to NaN and greater than every other value.
func cmpFloatNaN(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality consistent with Compare/Hash (NaN==NaN).
func (v Value) Equal(other Value) bool {
	if v.kind == KindNull || other.kind == KindNull {
		return v.kind == other.kind
	}
	c, err := v.Compare(other)
	if err != nil {
		return false
	}
	return c == 0
}

// Hash is consistent with Equal: equal values hash identically.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	switch v.kind {
	case KindNull:
		h.Write([]byte{0})
	case KindInteger:
		h.Write([]byte{1})
		writeUint64(h, uint64(v.i))
	case KindFloat:
		h.Write([]byte{1}) // same bucket as Integer: 1.0 and 1 hash together
		f, _ := v.AsFloat64()
		if i, ok := v.AsInt64(); ok && float64(i) == f {
			writeUint64(h, uint64(i))
		} else {
			writeUint64(h, math.Float64bits(f))
		}
	case KindText:
		h.Write([]byte{3})
		h.Write([]byte(v.s))
	case KindBoolean:
		h.Write([]byte{4})
		if v.b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindUUID:
		h.Write([]byte{5})
		h.Write([]byte(v.s))
	case KindTimestamp, KindDate:
		h.Write([]byte{6})
		writeUint64(h, uint64(v.t.UnixNano()))
	case KindArray:
		h.Write([]byte{7})
		for _, e := range v.arr {
			writeUint64(h, e.Hash())
		}
	case KindJSON:
		h.Write([]byte{8})
		b, _ := json.Marshal(v.j)
		h.Write(b)
	}
	return h.Sum64()
}

func writeUint64(h interface{ Write([]byte) (int, error) }, u uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	h.Write(buf[:])
}
