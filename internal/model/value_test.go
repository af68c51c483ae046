package model

import "testing"

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"numbers within epsilon", Number(10.0), Number(10.0 + 1e-12), true},
		{"numbers far apart", Number(10.0), Number(10.1), false},
		{"strings exact", String("river"), String("river"), true},
		{"strings differ", String("river"), String("road"), false},
		{"bools", Bool(true), Bool(true), true},
		{"different kinds", Number(1), String("1"), false},
		{"both none", None(), None(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal() = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestValueTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{None(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Number(0), false},
		{Number(1), true},
		{String(""), false},
		{String("x"), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
