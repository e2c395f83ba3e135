package neural_network

import (
	"math"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

var activations = map[string]func(float64) float64{
	"identity": func(x float64) float64 { return x },
	"logistic": errors.Sigmoid,
	"tanh":     math.Tanh,
	"relu":     func(x float64) float64 { return math.Max(x, 0) },
}

// derivatives are expressed in terms of the activation output a = f(z).
var derivatives = map[string]func(a float64) float64{
	"identity": func(float64) float64 { return 1 },
	"logistic": func(a float64) float64 { return a * (1 - a) },
	"tanh":     func(a float64) float64 { return 1 - a*a },
	"relu": func(a float64) float64 {
		if a > 0 {
			return 1
		}
		return 0
	},
}
