package linear_model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

func separableBinary() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func threeBlobs() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
		4, 4,
		4, 5,
		5, 4,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})
	return X, y
}

func checkProbaRows(t *testing.T, probas mat.Matrix, wantCols int) {
	t.Helper()
	rows, cols := probas.Dims()
	if cols != wantCols {
		t.Fatalf("expected %d probability columns, got %d", wantCols, cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			p := probas.At(i, j)
			if p < 0 || p > 1 {
				t.Errorf("invalid probability at (%d, %d): %v", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("probabilities for sample %d sum to %v", i, sum)
		}
	}
}

func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	for _, solver := range []string{"lbfgs", "newton-cg"} {
		t.Run(solver, func(t *testing.T) {
			X, y := separableBinary()
			lr := NewLogisticRegression(WithLRSolver(solver), WithLRMaxIter(1000), WithLRTol(1e-4))
			if err := lr.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}

			pred, err := lr.Predict(X)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			for i := 0; i < 6; i++ {
				if pred.At(i, 0) != y.At(i, 0) {
					t.Errorf("sample %d: expected %v, got %v", i, y.At(i, 0), pred.At(i, 0))
				}
			}

			XTest := mat.NewDense(2, 2, []float64{1, 1, 3, 3})
			testPred, err := lr.Predict(XTest)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if testPred.At(0, 0) != 0 || testPred.At(1, 0) != 1 {
				t.Errorf("expected [0 1], got [%v %v]", testPred.At(0, 0), testPred.At(1, 0))
			}
		})
	}
}

func TestLogisticRegression_PredictProba(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(500))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	probas, err := lr.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	checkProbaRows(t, probas, 2)

	pred, _ := lr.Predict(X)
	for i := 0; i < 4; i++ {
		p0, p1 := probas.At(i, 0), probas.At(i, 1)
		switch pred.At(i, 0) {
		case 0:
			if p0 <= p1 {
				t.Errorf("sample %d: predicted 0 but P(0)=%v <= P(1)=%v", i, p0, p1)
			}
		case 1:
			if p1 <= p0 {
				t.Errorf("sample %d: predicted 1 but P(1)=%v <= P(0)=%v", i, p1, p0)
			}
		}
	}
}

func TestLogisticRegression_Score(t *testing.T) {
	// class 1 when at least two of three bits are set
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 0, 1,
		0, 1, 0,
		0, 1, 1,
		1, 0, 0,
		1, 0, 1,
		1, 1, 0,
		1, 1, 1,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 1, 0, 1, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if score := lr.Score(X, y); score < 0.75 {
		t.Errorf("score too low: %v", score)
	}

	XSimple := mat.NewDense(6, 2, []float64{0, 0, 0, 1, 1, 0, 3, 3, 3, 4, 4, 3})
	ySimple := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	lr2 := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10))
	if err := lr2.Fit(XSimple, ySimple); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if score := lr2.Score(XSimple, ySimple); score != 1.0 {
		t.Errorf("expected perfect score on separable data, got %v", score)
	}
}

func TestLogisticRegression_Regularization(t *testing.T) {
	X := mat.NewDense(10, 5, []float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
		1, 1, 0, 0, 0,
		0, 1, 1, 0, 0,
		0, 0, 1, 1, 0,
		0, 0, 0, 1, 1,
		1, 0, 0, 0, 1,
	})
	y := mat.NewDense(10, 1, []float64{0, 0, 0, 1, 1, 0, 0, 1, 1, 1})

	norm := func(c float64) float64 {
		lr := NewLogisticRegression(WithLRC(c), WithLRMaxIter(1000))
		if err := lr.Fit(X, y); err != nil {
			t.Fatalf("Fit(C=%v): %v", c, err)
		}
		s := 0.0
		for j := 0; j < 5; j++ {
			s += lr.coef_[0][j] * lr.coef_[0][j]
		}
		return math.Sqrt(s)
	}

	strong, weak := norm(0.01), norm(100)
	if strong >= weak {
		t.Errorf("strong regularization should shrink weights: strong=%v weak=%v", strong, weak)
	}
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	for _, solver := range []string{"lbfgs", "newton-cg"} {
		t.Run(solver, func(t *testing.T) {
			X, y := threeBlobs()
			lr := NewLogisticRegression(WithLRSolver(solver), WithLRMaxIter(1000), WithLRC(10))
			if err := lr.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if lr.nClasses_ != 3 {
				t.Errorf("expected 3 classes, got %d", lr.nClasses_)
			}
			if len(lr.Coef()) != 3 {
				t.Errorf("expected one coefficient row per class, got %d", len(lr.Coef()))
			}
			if acc := lr.Score(X, y); acc < 8.0/9.0 {
				t.Errorf("multiclass accuracy too low: %v", acc)
			}

			probas, err := lr.PredictProba(X)
			if err != nil {
				t.Fatalf("PredictProba: %v", err)
			}
			checkProbaRows(t, probas, 3)
		})
	}
}

func TestLogisticRegression_NonContiguousLabels(t *testing.T) {
	X, y := separableBinary()
	y.Apply(func(_, _ int, v float64) float64 { return v*5 + 2 }, y) // labels 2 and 7

	lr := NewLogisticRegression(WithLRMaxIter(500), WithLRC(10))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got := lr.Classes(); len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Fatalf("Classes() = %v, want [2 7]", got)
	}
	pred, _ := lr.Predict(X)
	for i := 0; i < 6; i++ {
		if pred.At(i, 0) != y.At(i, 0) {
			t.Errorf("sample %d: expected %v, got %v", i, y.At(i, 0), pred.At(i, 0))
		}
	}
}

func TestLogisticRegression_GetSetParams(t *testing.T) {
	lr := NewLogisticRegression()

	params := lr.GetParams()
	if params["C"].(float64) != 1.0 {
		t.Errorf("default C should be 1.0, got %v", params["C"])
	}
	if params["max_iter"].(int) != 100 {
		t.Errorf("default max_iter should be 100, got %v", params["max_iter"])
	}

	err := lr.SetParams(map[string]interface{}{
		"C":        2.0,
		"max_iter": 200,
		"penalty":  "l1",
		"tol":      1e-5,
	})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if lr.C != 2.0 || lr.maxIter != 200 || lr.penalty != "l1" || lr.tol != 1e-5 {
		t.Errorf("params not updated: C=%v max_iter=%v penalty=%v tol=%v", lr.C, lr.maxIter, lr.penalty, lr.tol)
	}

	// l1 is accepted by SetParams but rejected by the solvers at Fit.
	X, y := separableBinary()
	if err := lr.Fit(X, y); err == nil {
		t.Error("expected Fit to reject penalty l1")
	}

	if err := lr.SetParams(map[string]interface{}{"gamma": 1.0}); err == nil {
		t.Error("expected error for unknown parameter")
	}
	if err := lr.SetParams(map[string]interface{}{"C": "big"}); err == nil {
		t.Error("expected error for mistyped C")
	}
}

func TestLogisticRegression_InvalidFit(t *testing.T) {
	X, y := separableBinary()
	tests := []struct {
		name string
		lr   *LogisticRegression
		y    *mat.Dense
	}{
		{"non-positive C", NewLogisticRegression(WithLRC(0)), y},
		{"unknown solver", NewLogisticRegression(WithLRSolver("saga")), y},
		{"single class", NewLogisticRegression(), mat.NewDense(6, 1, []float64{1, 1, 1, 1, 1, 1})},
		{"row mismatch", NewLogisticRegression(), mat.NewDense(5, 1, []float64{0, 0, 0, 1, 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.lr.Fit(X, tt.y); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X, y := threeBlobs()
	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRC(100))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a convergence warning")
	}
	var cw *errors.ConvergenceWarning
	if !errors.As(warnings[0], &cw) {
		t.Fatalf("expected ConvergenceWarning, got %T", warnings[0])
	}
	if !lr.state.IsFitted() {
		t.Error("model should be fitted despite the warning")
	}
}

func TestLogisticRegression_Clone(t *testing.T) {
	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRC(3), WithLRSolver("newton-cg"))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	clone := lr.Clone().(*LogisticRegression)
	if clone.C != 3 || clone.solver != "newton-cg" {
		t.Errorf("clone lost hyperparameters: %v", clone.GetParams())
	}
	if _, err := clone.Predict(X); err == nil {
		t.Error("clone should be unfitted")
	}
}

func TestLogisticRegression_NotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	if _, err := lr.Predict(X); err == nil {
		t.Error("expected error when predicting without fitting")
	}
	if _, err := lr.PredictProba(X); err == nil {
		t.Error("expected error when predicting probabilities without fitting")
	}
}
