package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/modelsearch/core/model"
	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母分散ベース）
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			s.Scale[j] = handleZeroScale(math.Sqrt(variance))
		}
	}

	s.state.SetFitted(c, r)
	return nil
}

// 定数特徴量のスケールは1にしてゼロ除算を避ける
func handleZeroScale(scale float64) float64 {
	if scale < 10*eps || math.IsNaN(scale) {
		return 1.0
	}
	return scale
}

const eps = 2.220446049250313e-16

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredictInput("StandardScaler", "Transform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredictInput("StandardScaler", "InverseTransform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// IsFitted は学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool { return s.state.IsFitted() }

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams はスケーラーのパラメータを設定する
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		b, err := model.ToBool(k, v)
		if err != nil {
			return err
		}
		switch k {
		case "with_mean":
			s.WithMean = b
		case "with_std":
			s.WithStd = b
		default:
			return model.UnknownParam("StandardScaler", k)
		}
	}
	s.state.Reset()
	return nil
}

// CloneTransformer は同じ設定の未学習スケーラーを返す
func (s *StandardScaler) CloneTransformer() model.TunableTransformer {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

// MinMaxScaler はscikit-learn互換のMin-Maxスケーラー
// データを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin は学習データの最小値
	DataMin []float64

	// DataRange は学習データの範囲 (max - min)、定数特徴量は1
	DataRange []float64

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}

	m.DataMin = make([]float64, c)
	m.DataRange = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		m.DataMin[j] = lo
		m.DataRange[j] = handleZeroScale(hi - lo)
	}

	m.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.CheckPredictInput("MinMaxScaler", "Transform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	// X_scaled = (X - X.min) / (X.max - X.min) * (max - min) + min
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.DataMin[j])/m.DataRange[j]*width + m.FeatureRange[0]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.CheckPredictInput("MinMaxScaler", "InverseTransform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.FeatureRange[0])/width*m.DataRange[j] + m.DataMin[j]
	}, X)
	return result, nil
}

// IsFitted は学習済みかどうかを返す
func (m *MinMaxScaler) IsFitted() bool { return m.state.IsFitted() }

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": []float64{m.FeatureRange[0], m.FeatureRange[1]},
	}
}

// SetParams はスケーラーのパラメータを設定する
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "feature_range" {
			return model.UnknownParam("MinMaxScaler", k)
		}
		fr, err := toRange(v)
		if err != nil {
			return err
		}
		m.FeatureRange = fr
	}
	m.state.Reset()
	return nil
}

func toRange(v interface{}) ([2]float64, error) {
	var items []interface{}
	switch x := v.(type) {
	case [2]float64:
		return x, nil
	case []float64:
		for _, f := range x {
			items = append(items, f)
		}
	case []interface{}:
		items = x
	}
	if len(items) != 2 {
		return [2]float64{}, errors.NewValidationError("feature_range", "must be a pair (min, max)", v)
	}
	var out [2]float64
	for i, e := range items {
		f, err := model.ToFloat64("feature_range", e)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

// CloneTransformer は同じ設定の未学習スケーラーを返す
func (m *MinMaxScaler) CloneTransformer() model.TunableTransformer {
	return NewMinMaxScaler(m.FeatureRange)
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])", m.FeatureRange[0], m.FeatureRange[1])
}
