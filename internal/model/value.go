// Package model holds the shared data types of the tile pipeline: the
// property/value containers, feature and tile containers, tile
// identifiers, and the scene-layer/draw-rule types the rule matcher and
// expression engine operate on.
package model

import (
	"fmt"
	"log/slog"
	"math"
)

// ValueKind discriminates the tagged union carried by Value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
)

func (k ValueKind) String() string {
	switch k {
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	default:
		return "none"
	}
}

// valueEpsilon is the tolerance used when comparing two Number values.
const valueEpsilon = 1e-9

// Value is the universal property and expression-result carrier: a tagged
// union over none/bool/number/string. The zero Value is None.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	b    bool
}

// None is the empty Value.
func None() Value { return Value{kind: ValueNone} }

// Bool wraps a boolean as a Value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{kind: ValueNumber, num: n} }

// String wraps a string as a Value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Kind reports which branch of the union is populated.
func (v Value) Kind() ValueKind { return v.kind }

// IsNone reports whether v carries no data.
func (v Value) IsNone() bool { return v.kind == ValueNone }

// AsBool returns the boolean payload and whether v is a ValueBool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsNumber returns the numeric payload and whether v is a ValueNumber.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsString returns the string payload and whether v is a ValueString.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// Truthy applies JS-like truthiness: None and the zero value of each kind
// are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case ValueNone:
		return false
	case ValueBool:
		return v.b
	case ValueNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case ValueString:
		return v.str != ""
	default:
		return false
	}
}

// Equal compares two Values under Value type rules: numeric equality uses
// an epsilon tolerance, string equality is exact bytes, and values of
// different kinds are never equal (None == None is the only cross-kind
// case, since both are kind ValueNone).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueNone:
		return true
	case ValueBool:
		return v.b == other.b
	case ValueNumber:
		return math.Abs(v.num-other.num) <= valueEpsilon
	case ValueString:
		return v.str == other.str
	default:
		return false
	}
}

// String renders the Value for logs and debugging.
func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return fmt.Sprintf("%t", v.b)
	case ValueNumber:
		return fmt.Sprintf("%g", v.num)
	case ValueString:
		return v.str
	default:
		return "<none>"
	}
}

// LogValue lets slog print a Value without the caller pre-formatting it.
func (v Value) LogValue() slog.Value {
	switch v.kind {
	case ValueBool:
		return slog.BoolValue(v.b)
	case ValueNumber:
		return slog.Float64Value(v.num)
	case ValueString:
		return slog.StringValue(v.str)
	default:
		return slog.StringValue("<none>")
	}
}
