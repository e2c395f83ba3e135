package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Hyperparameter values arrive from Go literals, YAML documents and CLI
// flags, so numbers may be any of int, int64, float64 or uint. The helpers
// below coerce them and report a ValidationError naming the parameter.

// ToFloat64 coerces a numeric parameter value.
func ToFloat64(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(name, "must be a number", v)
}

// ToInt coerces an integral parameter value. Floats are accepted only when
// they have no fractional part.
func ToInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int(x), nil
		}
	case float32:
		if f := float64(x); f == math.Trunc(f) {
			return int(f), nil
		}
	}
	return 0, errors.NewValidationError(name, "must be an integer", v)
}

// ToOptionalInt is ToInt where nil means "unset" and yields 0.
func ToOptionalInt(name string, v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	return ToInt(name, v)
}

// ToString coerces a string parameter value.
func ToString(name string, v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError(name, "must be a string", v)
}

// ToBool coerces a boolean parameter value.
func ToBool(name string, v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NewValidationError(name, "must be a boolean", v)
}

// ToIntSlice coerces a tuple of integers such as hidden_layer_sizes. A
// single integer is treated as a one-element tuple.
func ToIntSlice(name string, v interface{}) ([]int, error) {
	switch x := v.(type) {
	case []int:
		return append([]int(nil), x...), nil
	case []interface{}:
		out := make([]int, len(x))
		for i, e := range x {
			n, err := ToInt(name, e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	if n, err := ToInt(name, v); err == nil {
		return []int{n}, nil
	}
	return nil, errors.NewValidationError(name, "must be a list of integers", v)
}

// OneOf validates that s is one of allowed.
func OneOf(name, s string, allowed ...string) error {
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return errors.NewValidationError(name, "must be one of "+strings.Join(allowed, ", "), s)
}

// UnknownParam reports a parameter name that an estimator does not have.
func UnknownParam(model, name string) error {
	return errors.NewValidationError(name, "unknown parameter for "+model, name)
}

// FormatParam renders a parameter value the way result files show it.
func FormatParam(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = fmt.Sprint(n)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatParam(e)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case float64:
		return formatFloat(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprint(f)
}

// SortedKeys returns the keys of params in ascending order.
func SortedKeys(params map[string]interface{}) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
