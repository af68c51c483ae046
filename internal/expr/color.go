package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// cssColorNames is a small, commonly-used subset of CSS named colors —
// scene files in the wild stick to a handful of these.
var cssColorNames = map[string]uint32{
	"black":   0x000000FF,
	"white":   0xFFFFFFFF,
	"red":     0xFF0000FF,
	"green":   0x008000FF,
	"blue":    0x0000FFFF,
	"yellow":  0xFFFF00FF,
	"gray":    0x808080FF,
	"grey":    0x808080FF,
	"orange":  0xFFA500FF,
	"purple":  0x800080FF,
	"cyan":    0x00FFFFFF,
	"magenta": 0xFF00FFFF,
	"transparent": 0x00000000,
}

// ParseColor accepts "#rrggbb", "#rgba", a CSS color name, a 32-bit ARGB
// integer, or a [r,g,b(,a)] triple/quad in 0..1, returning packed RGBA
// (0xRRGGBBAA)
func ParseColor(raw interface{}) (uint32, bool) {
	switch v := raw.(type) {
	case string:
		return parseColorString(v)
	case float64:
		return argbToRGBA(uint32(int64(v))), true
	case int:
		return argbToRGBA(uint32(v)), true
	case []float64:
		return floatsToRGBA(v), true
	case []interface{}:
		fs := make([]float64, 0, len(v))
		for _, x := range v {
			f, ok := x.(float64)
			if !ok {
				return 0, false
			}
			fs = append(fs, f)
		}
		return floatsToRGBA(fs), true
	default:
		return 0, false
	}
}

func floatsToRGBA(fs []float64) uint32 {
	if len(fs) < 3 {
		return 0
	}
	a := 1.0
	if len(fs) >= 4 {
		a = fs[3]
	}
	return componentsToRGBA(fs[0], fs[1], fs[2], a)
}

func componentsToRGBA(r, g, b, a float64) uint32 {
	clamp := func(c float64) uint32 {
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		return uint32(c*255 + 0.5)
	}
	return clamp(r)<<24 | clamp(g)<<16 | clamp(b)<<8 | clamp(a)
}

// argbToRGBA repacks a 0xAARRGGBB integer (as JS would author it) into
// our 0xRRGGBBAA wire order.
func argbToRGBA(argb uint32) uint32 {
	a := (argb >> 24) & 0xFF
	r := (argb >> 16) & 0xFF
	g := (argb >> 8) & 0xFF
	b := argb & 0xFF
	return r<<24 | g<<16 | b<<8 | a
}

func parseColorString(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if s[0] == '#' {
		return parseHexColor(s[1:])
	}
	if c, ok := cssColorNames[strings.ToLower(s)]; ok {
		return c, true
	}
	return 0, false
}

func parseHexColor(hex string) (uint32, bool) {
	expand := func(c byte) string { return string([]byte{c, c}) }
	var rs, gs, bs, as string
	switch len(hex) {
	case 3: // rgb shorthand
		rs, gs, bs, as = expand(hex[0]), expand(hex[1]), expand(hex[2]), "ff"
	case 4: // rgba shorthand
		rs, gs, bs, as = expand(hex[0]), expand(hex[1]), expand(hex[2]), expand(hex[3])
	case 6:
		rs, gs, bs, as = hex[0:2], hex[2:4], hex[4:6], "ff"
	case 8:
		rs, gs, bs, as = hex[0:2], hex[2:4], hex[4:6], hex[6:8]
	default:
		return 0, false
	}
	r, err1 := strconv.ParseUint(rs, 16, 8)
	g, err2 := strconv.ParseUint(gs, 16, 8)
	b, err3 := strconv.ParseUint(bs, 16, 8)
	a, err4 := strconv.ParseUint(as, 16, 8)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, false
	}
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a), true
}

// FormatColor renders a packed 0xRRGGBBAA color as "#rrggbbaa", useful
// for logging.
func FormatColor(rgba uint32) string {
	return fmt.Sprintf("#%08x", rgba)
}
