package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Wavelet names accepted by DWT. "haar" and "db1" are the same filter pair.
const (
	WaveletDB1  = "db1"
	WaveletHaar = "haar"
)

// DWT applies a single-level discrete wavelet transform to every row of X and
// returns the approximation and detail coefficients. Rows of odd length are
// extended symmetrically, so the last sample is paired with itself and each
// output has ceil(n/2) columns.
func DWT(X mat.Matrix, wavelet string) (cA, cD *mat.Dense, err error) {
	if wavelet != WaveletDB1 && wavelet != WaveletHaar {
		return nil, nil, errors.NewValidationError("wavelet", "only db1 (haar) is supported", wavelet)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, nil, errors.NewModelError("DWT", "empty data", errors.ErrEmptyData)
	}

	half := (c + 1) / 2
	cA = mat.NewDense(r, half, nil)
	cD = mat.NewDense(r, half, nil)
	row := make([]float64, c)
	a := make([]float64, half)
	d := make([]float64, half)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		haarStep(row, a, d)
		cA.SetRow(i, a)
		cD.SetRow(i, d)
	}
	return cA, cD, nil
}

// haarStep writes the db1 analysis of x into a and d.
func haarStep(x, a, d []float64) {
	n := len(x)
	for k := range a {
		x0 := x[2*k]
		x1 := x0
		if 2*k+1 < n {
			x1 = x[2*k+1]
		}
		a[k] = (x0 + x1) / math.Sqrt2
		d[k] = (x0 - x1) / math.Sqrt2
	}
}
