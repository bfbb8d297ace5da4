// Package plant defines the loosely typed plant records handed to the layout
// pipeline together with the typed schema observed in practice.
package plant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the scalar carried by a Value.
type Kind uint8

const (
	// KindNull marks an absent value.
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a string, number, boolean or absent scalar. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric Value for an integer.
func Int(i int64) Value { return Number(float64(i)) }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Null returns the absent Value.
func Null() Value { return Value{} }

// Range renders a low/high pair the way the layout tool's loader reads it ("30-100").
func Range(low, high float64) Value {
	return String(FormatNumber(low) + "-" + FormatNumber(high))
}

// Kind reports which scalar the value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether the value is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the boolean payload and whether the value is a boolean.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Text renders the textual form used in CSV cells and command arguments.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return FormatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) String() string { return v.Text() }

// FormatNumber renders f in its shortest decimal form: 10, 0.5, 35.
// Magnitudes of 1e21 and above, and non-zero magnitudes below 1e-6, switch
// to exponent notation without exponent padding (1e+21, 1e-7, 2.5e-10).
func FormatNumber(f float64) string {
	abs := math.Abs(f)
	if abs < 1e21 && (abs >= 1e-6 || f == 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok || len(exp) < 2 {
		return s
	}
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + exp[:1] + digits
}

// MarshalJSON encodes the value as the matching JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("plant: unsupported number %v", v.num)
		}
		return []byte(FormatNumber(v.num)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts JSON scalars. An array of numbers is folded into a
// range string; other arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("plant: empty value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var nums []float64
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("plant: only numeric arrays are supported: %w", err)
		}
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = FormatNumber(n)
		}
		*v = String(strings.Join(parts, "-"))
		return nil
	case '{':
		return fmt.Errorf("plant: nested objects are not supported")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	}
}
