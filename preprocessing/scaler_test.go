package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	scaler := NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	if math.Abs(scaler.Mean[0]-2.5) > 1e-12 {
		t.Errorf("Mean[0] = %v, want 2.5", scaler.Mean[0])
	}
	// population std of 1..4
	if want := math.Sqrt(1.25); math.Abs(scaler.Scale[0]-want) > 1e-12 {
		t.Errorf("Scale[0] = %v, want %v", scaler.Scale[0], want)
	}
	// constant column keeps scale 1
	if scaler.Scale[1] != 1 {
		t.Errorf("Scale[1] = %v, want 1", scaler.Scale[1])
	}

	sum := 0.0
	for i := 0; i < 4; i++ {
		sum += Xs.At(i, 0)
		if Xs.At(i, 1) != 0 {
			t.Errorf("constant column should become 0, got %v", Xs.At(i, 1))
		}
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("scaled column mean = %v, want 0", sum/4)
	}

	back, err := scaler.InverseTransform(Xs)
	if err != nil {
		t.Fatalf("InverseTransform failed: %v", err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Errorf("InverseTransform did not restore input")
	}
}

func TestStandardScaler_Errors(t *testing.T) {
	scaler := NewStandardScalerDefault()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, err := scaler.Transform(X)
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	if err := scaler.Fit(X); err != nil {
		t.Fatal(err)
	}
	_, err = scaler.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestStandardScaler_Params(t *testing.T) {
	scaler := NewStandardScalerDefault()
	if err := scaler.SetParams(map[string]interface{}{"with_mean": false}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if scaler.WithMean {
		t.Error("with_mean not updated")
	}
	if err := scaler.SetParams(map[string]interface{}{"copy": true}); err == nil {
		t.Error("expected error for unknown parameter")
	}

	clone := scaler.CloneTransformer().(*StandardScaler)
	if clone.WithMean || !clone.WithStd {
		t.Errorf("clone params = %v", clone.GetParams())
	}
	if clone.IsFitted() {
		t.Error("clone must be unfitted")
	}
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})
	scaler := NewMinMaxScaler([2]float64{-1, 1})
	Xs, err := scaler.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}

	want := []float64{-1, 0, 1}
	for i, w := range want {
		if math.Abs(Xs.At(i, 0)-w) > 1e-12 {
			t.Errorf("row %d: got %v, want %v", i, Xs.At(i, 0), w)
		}
	}

	back, err := scaler.InverseTransform(Xs)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Errorf("InverseTransform did not restore input")
	}

	if err := scaler.SetParams(map[string]interface{}{"feature_range": []interface{}{0, 1}}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if scaler.FeatureRange != [2]float64{0, 1} {
		t.Errorf("FeatureRange = %v", scaler.FeatureRange)
	}
	if scaler.IsFitted() {
		t.Error("SetParams should reset fitted state")
	}
}
