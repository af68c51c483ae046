package expr

import (
	"strconv"
	"strings"

	"github.com/tangram-go/tangramcore/internal/model"
)

// ParseWidth accepts a bare number (pixels) or a "<n>m" / "<n>px" string,
// matching the width-key coercion rule style functions return values
// through.
func ParseWidth(raw interface{}) (model.WidthValue, bool) {
	switch v := raw.(type) {
	case float64:
		return model.WidthValue{Value: float32(v)}, true
	case string:
		return parseWidthString(v)
	default:
		return model.WidthValue{}, false
	}
}

func parseWidthString(s string) (model.WidthValue, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "px"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
		if err != nil {
			return model.WidthValue{}, false
		}
		return model.WidthValue{Value: float32(n)}, true
	case strings.HasSuffix(s, "m"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return model.WidthValue{}, false
		}
		return model.WidthValue{Value: float32(n), IsMeter: true}, true
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.WidthValue{}, false
		}
		return model.WidthValue{Value: float32(n)}, true
	}
}
