package router

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apps78/cotune-bridge/internal/endpoint"
)

// Args are the loosely typed arguments of a command, as decoded from JSON
type Args map[string]interface{}

// String returns the string at key; a missing or null key yields ""
func (a Args) String(key string) (string, error) {
	switch v := a[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
}

// Int returns the integer at key and whether it was present
func (a Args) Int(key string) (int, bool, error) {
	switch v := a[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("argument %q must be an integer, got %v", key, v)
		}
		return int(v), true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("argument %q: %w", key, err)
		}
		return int(n), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, fmt.Errorf("argument %q: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
}

// Bool returns the boolean at key, or nil when absent
func (a Args) Bool(key string) (*bool, error) {
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case bool:
		return &v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		return &b, nil
	default:
		return nil, fmt.Errorf("argument %q must be a boolean, got %T", key, v)
	}
}

// StringList accepts a comma or space separated string or a list of strings
func (a Args) StringList(key string) ([]string, error) {
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case string:
		return endpoint.SplitRelays(v), nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a string or list, got %T", key, v)
	}
}

// Text returns the value at key as text: strings verbatim, anything else JSON encoded
func (a Args) Text(key string) (string, bool) {
	switch v := a[key].(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
