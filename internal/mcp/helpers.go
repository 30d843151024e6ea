package mcpserver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func boolPtr(v bool) *bool { return &v }

// stringArg returns a trimmed string argument, or "" when absent.
func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// intArg reads a whole-number argument. JSON clients send numbers as float64.
func intArg(args map[string]any, name string) (int, bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a whole number", name)
	}
}

// cellValue turns a tool argument into a cell value. Strings are kept as text unless
// asJSON is set, in which case they must hold a JSON literal. Whole numbers become int64.
func cellValue(raw any, asJSON bool) (any, error) {
	text, ok := raw.(string)
	if !ok {
		return wholeNumber(raw), nil
	}
	if !asJSON {
		return text, nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return wholeNumber(v), nil
}

func wholeNumber(v any) any {
	if n, ok := v.(float64); ok && n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return int64(n)
	}
	return v
}
