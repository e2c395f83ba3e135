package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - 正解率) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// AccuracyMatrix は n×1 行列形式の入力に対して正解率を計算する
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := columnPair("AccuracyMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(t, p)
}

// ClassCount は予測クラスごとの正解・不正解の件数
type ClassCount struct {
	Class     float64
	Correct   int
	Incorrect int
}

// ClassCounts は予測されたクラスごとに、正しく予測された件数と誤って予測された件数を数える
// 結果はクラスの昇順。一度も予測されなかったクラスは含まれない
// yTrue に現れるのに一度も予測されなかったクラスごとに UndefinedMetricWarning を出す
func ClassCounts(yTrue, yPred mat.Matrix) ([]ClassCount, error) {
	t, p, err := columnPair("ClassCounts", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	byClass := make(map[float64]*ClassCount)
	for i := 0; i < p.Len(); i++ {
		pred := p.AtVec(i)
		c, ok := byClass[pred]
		if !ok {
			c = &ClassCount{Class: pred}
			byClass[pred] = c
		}
		if t.AtVec(i) == pred {
			c.Correct++
		} else {
			c.Incorrect++
		}
	}

	var unpredicted []float64
	seen := make(map[float64]bool)
	for i := 0; i < t.Len(); i++ {
		cls := t.AtVec(i)
		if _, ok := byClass[cls]; !ok && !seen[cls] {
			seen[cls] = true
			unpredicted = append(unpredicted, cls)
		}
	}
	sort.Float64s(unpredicted)
	for _, cls := range unpredicted {
		errors.Warn(errors.NewUndefinedMetricWarning("precision",
			fmt.Sprintf("no predicted samples for class %v", cls), 0))
	}

	out := make([]ClassCount, 0, len(byClass))
	for _, c := range byClass {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out, nil
}
