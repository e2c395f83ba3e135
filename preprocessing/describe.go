package preprocessing

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Summary columns, in output order.
const (
	ColMin      = "min"
	ColMax      = "max"
	ColKurtosis = "kurtosis"
	ColSkewness = "skewness"
	ColVariance = "variance"
	ColMean     = "mean"
)

var summaryColumns = []string{ColMin, ColMax, ColKurtosis, ColSkewness, ColVariance, ColMean}

// Summary holds one row of descriptive statistics per input row.
type Summary struct {
	data *mat.Dense
}

// Columns returns the column names of Matrix.
func (s *Summary) Columns() []string {
	return append([]string(nil), summaryColumns...)
}

// Matrix returns the statistics as an n×6 matrix.
func (s *Summary) Matrix() *mat.Dense {
	return s.data
}

// Column returns the named statistic for every row.
func (s *Summary) Column(name string) ([]float64, error) {
	for j, c := range summaryColumns {
		if c == name {
			return mat.Col(nil, j, s.data), nil
		}
	}
	return nil, errors.NewValidationError("column", "unknown summary column", name)
}

// WriteCSV writes a header row followed by one row per sample.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryColumns); err != nil {
		return errors.Wrap(err, "write summary header")
	}
	r, c := s.data.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rec[j] = strconv.FormatFloat(s.data.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write summary row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush summary")
}

// Describe reduces every row of X to min, max, kurtosis, skewness, variance
// and mean. Variance uses n-1 in the denominator; skewness and kurtosis are
// the biased moment ratios, kurtosis in Fisher form. Statistics that are
// undefined for a row (a single observation, or zero spread) are NaN.
func Describe(X mat.Matrix) (*Summary, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("Describe", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(r, len(summaryColumns), nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, describeRow(row))
	}
	return &Summary{data: out}, nil
}

func describeRow(x []float64) []float64 {
	mean := stat.Mean(x, nil)
	variance := math.NaN()
	if len(x) > 1 {
		variance = stat.Variance(x, nil)
	}

	m2 := stat.Moment(2, x, nil)
	skew, kurt := math.NaN(), math.NaN()
	if m2 > 0 {
		skew = stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
		kurt = stat.Moment(4, x, nil)/(m2*m2) - 3
	}

	return []float64{floats.Min(x), floats.Max(x), kurt, skew, variance, mean}
}

func median(values []float64) float64 {
	m, err := stats.Median(stats.Float64Data(values))
	if err != nil {
		return math.NaN()
	}
	return m
}
