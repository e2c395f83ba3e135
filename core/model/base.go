package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// ExtractLabels は y (n×1 または 1×n) をスライスに変換する
func ExtractLabels(y mat.Matrix) ([]float64, error) {
	r, c := y.Dims()
	switch {
	case c == 1:
		out := make([]float64, r)
		for i := range out {
			out[i] = y.At(i, 0)
		}
		return out, nil
	case r == 1:
		out := make([]float64, c)
		for i := range out {
			out[i] = y.At(0, i)
		}
		return out, nil
	default:
		return nil, errors.NewValueError("ExtractLabels", "y must be a column or row vector")
	}
}

// EncodeLabels はラベルをソート済みのクラス一覧とクラスインデックスに変換する
func EncodeLabels(labels []float64) (classes []float64, idx []int) {
	seen := make(map[float64]struct{}, 8)
	for _, v := range labels {
		seen[v] = struct{}{}
	}
	classes = make([]float64, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)

	pos := make(map[float64]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	idx = make([]int, len(labels))
	for i, v := range labels {
		idx[i] = pos[v]
	}
	return classes, idx
}

// CheckXy は学習データの形状と値を検証し、ラベルを返す
func CheckXy(op string, X, y mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.ErrEmptyData
	}
	labels, err := ExtractLabels(y)
	if err != nil {
		return nil, err
	}
	if len(labels) != rows {
		return nil, errors.NewDimensionError(op, rows, len(labels), 0)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewValueError(op, "input contains NaN or infinity")
			}
		}
	}
	return labels, nil
}

// LabelColumn は予測ラベルを n×1 の行列にまとめる
func LabelColumn(labels []float64) *mat.Dense {
	return mat.NewDense(len(labels), 1, append([]float64(nil), labels...))
}

// ScoreAccuracy は予測の正解率を返す。予測に失敗した場合は 0 を返す
func ScoreAccuracy(p Predictor, X, y mat.Matrix) float64 {
	labels, err := ExtractLabels(y)
	if err != nil || len(labels) == 0 {
		return 0
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0
	}
	if r, _ := pred.Dims(); r != len(labels) {
		return 0
	}
	correct := 0
	for i, v := range labels {
		if pred.At(i, 0) == v {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}
