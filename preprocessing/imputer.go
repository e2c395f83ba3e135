package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// SimpleImputer は欠損値を統計量で置き換える
//
// Axis 0 は列ごとの統計量を Fit で学習し Transform で適用する。
// Axis 1 は行ごとの統計量を Transform のたびに計算するため Fit は形状の記録のみ行う。
type SimpleImputer struct {
	state *model.StateManager

	// MissingValue は欠損を表す値。NaN の場合は NaN と一致する要素を欠損とみなす
	MissingValue float64

	// Strategy は "mean" または "median"
	Strategy string

	// Axis は統計量を計算する方向 (0: 列, 1: 行)
	Axis int

	// Statistics は Axis 0 で学習した列ごとの統計量
	Statistics []float64
}

// NewSimpleImputer は新しいSimpleImputerを作成する
func NewSimpleImputer(missingValue float64, strategy string, axis int) *SimpleImputer {
	return &SimpleImputer{
		state:        model.NewStateManager(),
		MissingValue: missingValue,
		Strategy:     strategy,
		Axis:         axis,
	}
}

func (s *SimpleImputer) isMissing(v float64) bool {
	if math.IsNaN(s.MissingValue) {
		return math.IsNaN(v)
	}
	return v == s.MissingValue
}

func (s *SimpleImputer) validate() error {
	if err := model.OneOf("strategy", s.Strategy, "mean", "median"); err != nil {
		return err
	}
	if s.Axis != 0 && s.Axis != 1 {
		return errors.NewValidationError("axis", "must be 0 or 1", s.Axis)
	}
	return nil
}

// Fit は欠損値補完のための統計量を学習する
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	if err := s.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Statistics = nil
	if s.Axis == 0 {
		s.Statistics = make([]float64, c)
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, X)
			stat, ok := s.statistic(col)
			if !ok {
				return errors.NewValueError("SimpleImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
			}
			s.Statistics[j] = stat
		}
	}

	s.state.SetFitted(c, r)
	return nil
}

// Transform は欠損値を補完した新しい行列を返す
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredictInput("SimpleImputer", "Transform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	result := mat.DenseCopyOf(X)
	if s.Axis == 0 {
		result.Apply(func(i, j int, v float64) float64 {
			if s.isMissing(v) {
				return s.Statistics[j]
			}
			return v
		}, result)
		return result, nil
	}

	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, result)
		stat, ok := s.statistic(row)
		if !ok {
			return nil, errors.NewValueError("SimpleImputer.Transform", fmt.Sprintf("row %d has no observed values", i))
		}
		for j, v := range row {
			if s.isMissing(v) {
				result.Set(i, j, stat)
			}
		}
	}
	return result, nil
}

// FitTransform は学習と補完を続けて行う
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// statistic は欠損でない値から統計量を計算する。観測値がなければ false
func (s *SimpleImputer) statistic(values []float64) (float64, bool) {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !s.isMissing(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return 0, false
	}
	if s.Strategy == "median" {
		return median(observed), true
	}
	sum := 0.0
	for _, v := range observed {
		sum += v
	}
	return sum / float64(len(observed)), true
}

// GetParams は補完器のパラメータを取得する
func (s *SimpleImputer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"missing_values": s.MissingValue,
		"strategy":       s.Strategy,
		"axis":           s.Axis,
	}
}

// SetParams は補完器のパラメータを設定する
func (s *SimpleImputer) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		var err error
		switch k {
		case "missing_values":
			s.MissingValue, err = model.ToFloat64(k, v)
		case "strategy":
			s.Strategy, err = model.ToString(k, v)
		case "axis":
			s.Axis, err = model.ToInt(k, v)
		default:
			err = model.UnknownParam("SimpleImputer", k)
		}
		if err != nil {
			return err
		}
	}
	s.state.Reset()
	return s.validate()
}

// CloneTransformer は同じ設定の未学習補完器を返す
func (s *SimpleImputer) CloneTransformer() model.TunableTransformer {
	return NewSimpleImputer(s.MissingValue, s.Strategy, s.Axis)
}
