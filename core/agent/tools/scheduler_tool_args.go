package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// reservedArgs name identity fields a model might try to supply itself.
var reservedArgs = []string{"current_user", "identity"}

func stringArg(args map[string]any, key, defaultVal string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return defaultVal
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// optionalStringArg returns nil when key is absent, null or blank.
func optionalStringArg(args map[string]any, key string) *string {
	v := stringArg(args, key, "")
	if v == "" {
		return nil
	}
	return &v
}

func intArg(args map[string]any, key string, defaultVal int) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return defaultVal, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return int(n), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return defaultVal, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func hasArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}
