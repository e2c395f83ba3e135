package errors

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCheckScalarAndMatrix(t *testing.T) {
	if err := CheckScalar("loss", 0.5, 1); err != nil {
		t.Errorf("finite scalar: unexpected error %v", err)
	}
	if err := CheckScalar("loss", math.NaN(), 7); err == nil {
		t.Error("NaN scalar: expected an error")
	}

	ok := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if err := CheckMatrix("coef", ok, 2, 2, 0); err != nil {
		t.Errorf("finite matrix: unexpected error %v", err)
	}

	bad := mat.NewDense(2, 2, []float64{1, math.Inf(1), 3, math.NaN()})
	err := CheckMatrix("coef", bad, 2, 2, 3)
	var nie *NumericalInstabilityError
	if !As(err, &nie) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if nie.Operation != "coef" || nie.Iteration != 3 || len(nie.Values) != 1 {
		t.Errorf("unexpected error fields: %+v", nie)
	}
}

func TestStableFunctions(t *testing.T) {
	if got := Log1pExp(1000); got != 1000 {
		t.Errorf("Log1pExp(1000) = %v", got)
	}
	if got := Sigmoid(-1000); got != 0 {
		t.Errorf("Sigmoid(-1000) = %v", got)
	}
	if got := LogSumExp([]float64{1000, 1000}); math.Abs(got-(1000+math.Ln2)) > 1e-9 {
		t.Errorf("LogSumExp = %v", got)
	}

	p := []float64{1, 2, 3}
	Softmax(p)
	if s := p[0] + p[1] + p[2]; math.Abs(s-1) > 1e-12 || !(p[0] < p[1] && p[1] < p[2]) {
		t.Errorf("Softmax = %v", p)
	}
	if got := ClipValue(5, 0, 1); got != 1 {
		t.Errorf("ClipValue = %v", got)
	}
}
