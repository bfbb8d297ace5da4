package plant

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueText(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"zero value", Value{}, ""},
		{"string", String("Pinus densiflora"), "Pinus densiflora"},
		{"integer", Int(10), "10"},
		{"fraction", Number(0.5), "0.5"},
		{"negative", Number(-2.25), "-2.25"},
		{"large", Number(1e21), "1e+21"},
		{"very large", Number(1.5e300), "1.5e+300"},
		{"small fixed", Number(0.000001), "0.000001"},
		{"tiny", Number(1e-7), "1e-7"},
		{"tiny fraction", Number(-2.5e-10), "-2.5e-10"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"range", Range(30, 100), "30-100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.Text(); got != tc.want {
				t.Fatalf("Text() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	if s, ok := String("x").Str(); !ok || s != "x" {
		t.Fatalf("Str mismatch: %q %v", s, ok)
	}
	if _, ok := Int(1).Str(); ok {
		t.Fatalf("number must not report as string")
	}
	if n, ok := Int(7).Num(); !ok || n != 7 {
		t.Fatalf("Num mismatch: %v %v", n, ok)
	}
	if b, ok := Bool(true).Boolean(); !ok || !b {
		t.Fatalf("Boolean mismatch")
	}
	if !Null().IsNull() || Null().Kind() != KindNull {
		t.Fatalf("expected null kind")
	}
	if KindNumber.String() != "number" {
		t.Fatalf("unexpected kind label %q", KindNumber.String())
	}
}

func TestValueJSON(t *testing.T) {
	inputs := map[string]Value{
		`null`:      Null(),
		`"a,b"`:     String("a,b"),
		`10`:        Int(10),
		`0.5`:       Number(0.5),
		`true`:      Bool(true),
		`[30, 100]`: String("30-100"),
	}
	for raw, want := range inputs {
		var v Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if v != want {
			t.Fatalf("unmarshal %s = %#v, want %#v", raw, v, want)
		}
	}

	for _, bad := range []string{`{"a":1}`, `["x"]`} {
		var v Value
		if err := json.Unmarshal([]byte(bad), &v); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}

	if _, err := json.Marshal(Number(math.NaN())); err == nil {
		t.Fatalf("expected NaN marshal error")
	}
	out, err := json.Marshal([]Value{String("q\""), Int(3), Bool(false), Null()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `["q\"",3,false,null]` {
		t.Fatalf("unexpected encoding %s", out)
	}
}
