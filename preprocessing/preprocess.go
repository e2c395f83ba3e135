package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
)

// Preprocess reduces each sample to summary statistics: entries equal to
// naValue are replaced by the mean of the row's observed entries, the row is
// passed through a db1 wavelet transform and the approximation coefficients
// are described by Describe.
func Preprocess(X mat.Matrix, naValue float64) (*Summary, error) {
	logger := log.GetLoggerWithName("preprocessing")
	r, c := X.Dims()
	logger.Debug("Preprocessing started",
		log.OperationKey, log.OperationTransform,
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)

	imp := NewSimpleImputer(naValue, "mean", 1)
	filled, err := imp.FitTransform(X)
	if err != nil {
		return nil, errors.Wrap(err, "impute")
	}

	cA, _, err := DWT(filled, WaveletDB1)
	if err != nil {
		return nil, errors.Wrap(err, "wavelet transform")
	}

	summary, err := Describe(cA)
	if err != nil {
		return nil, errors.Wrap(err, "describe")
	}
	return summary, nil
}
