package ingest

import (
	"bytes"
	"encoding/json"
	"math"
)

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindNull
	kindNumber
	kindString
	kindOther
)

// Value is one loosely typed field of an inbound report. It records whether
// the field was absent, null, a number, a string, or something else, so the
// gateway can apply per-field rules instead of coercing falsy values.
type Value struct {
	kind valueKind
	num  float64
	str  string
}

func Number(f float64) Value { return Value{kind: kindNumber, num: f} }
func String(s string) Value  { return Value{kind: kindString, str: s} }
func Null() Value            { return Value{kind: kindNull} }

// Absent reports whether the field was missing from the payload.
func (v Value) Absent() bool { return v.kind == kindAbsent }

// Missing reports whether the field was absent or explicitly null.
func (v Value) Missing() bool { return v.kind == kindAbsent || v.kind == kindNull }

// Float returns the numeric value and whether the field holds a finite number.
func (v Value) Float() (float64, bool) {
	if v.kind != kindNumber || math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return 0, false
	}
	return v.num, true
}

// Str returns the string value and whether the field holds a string.
func (v Value) Str() (string, bool) {
	if v.kind != kindString {
		return "", false
	}
	return v.str, true
}

// IsZero lets encoding/json drop absent fields under omitzero.
func (v Value) IsZero() bool { return v.kind == kindAbsent }

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = Null()
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = String(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			// out of float64 range, e.g. 1e999
			*v = Value{kind: kindOther}
			return nil
		}
		*v = Number(f)
	default:
		// bool, object or array
		*v = Value{kind: kindOther}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		if _, ok := v.Float(); !ok {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case kindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}
