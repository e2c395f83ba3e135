package model_selection

import (
	"sort"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// ParamGrid maps parameter names to the values to try.
type ParamGrid map[string][]interface{}

// ParameterGrid expands grids into the list of candidate parameter sets.
// Within a grid keys are iterated in sorted order with the last key varying
// fastest; an empty grid yields one empty candidate.
func ParameterGrid(grids ...ParamGrid) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	for _, g := range grids {
		keys := make([]string, 0, len(g))
		for k, vals := range g {
			if len(vals) == 0 {
				return nil, errors.NewValidationError(k, "parameter grid values must be a non-empty list", vals)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out = append(out, expand(g, keys)...)
	}
	return out, nil
}

func expand(g ParamGrid, keys []string) []map[string]interface{} {
	combos := []map[string]interface{}{{}}
	for _, k := range keys {
		next := make([]map[string]interface{}, 0, len(combos)*len(g[k]))
		for _, c := range combos {
			for _, v := range g[k] {
				m := make(map[string]interface{}, len(c)+1)
				for ck, cv := range c {
					m[ck] = cv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos
}

// Len returns the number of candidates in the grid.
func (g ParamGrid) Len() int {
	n := 1
	for _, v := range g {
		n *= len(v)
	}
	return n
}
