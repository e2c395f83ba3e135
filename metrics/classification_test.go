package metrics

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
)

func TestClassificationError(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect classification",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  0.0,
		},
		{
			name:  "One error",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.2,
		},
		{
			name:  "All wrong",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  1.0,
		},
		{
			name:  "Binary classification",
			yTrue: []float64{0, 0, 1, 1},
			yPred: []float64{0, 1, 1, 0},
			want:  0.5,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
		{
			name:    "Dimension mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := ClassificationError(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("ClassificationError() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ClassificationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty vectors",
			yTrue:   []float64{},
			yPred:   []float64{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
			}
			if len(tt.yPred) > 0 {
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracyMatrix(t *testing.T) {
	yTrue := mat.NewDense(4, 1, []float64{0, 1, 1, 2})
	yPred := mat.NewDense(4, 1, []float64{0, 1, 2, 2})

	got, err := AccuracyMatrix(yTrue, yPred)
	if err != nil {
		t.Fatalf("AccuracyMatrix: %v", err)
	}
	if got != 0.75 {
		t.Errorf("AccuracyMatrix() = %v, want 0.75", got)
	}

	_, err = AccuracyMatrix(yTrue, mat.NewDense(3, 1, []float64{0, 1, 1}))
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestClassCounts(t *testing.T) {
	tests := []struct {
		name   string
		yTrue  []float64
		yPred  []float64
		want   []ClassCount
		warned []string
	}{
		{
			name:  "three classes",
			yTrue: []float64{0, 0, 1, 1, 2, 2},
			yPred: []float64{0, 1, 1, 1, 0, 2},
			want: []ClassCount{
				{Class: 0, Correct: 1, Incorrect: 1},
				{Class: 1, Correct: 2, Incorrect: 1},
				{Class: 2, Correct: 1, Incorrect: 0},
			},
		},
		{
			name:  "class never predicted is omitted",
			yTrue: []float64{3, 1, 3},
			yPred: []float64{1, 1, 1},
			want: []ClassCount{
				{Class: 1, Correct: 1, Incorrect: 2},
			},
			warned: []string{"no predicted samples for class 3"},
		},
		{
			name:  "two classes never predicted",
			yTrue: []float64{2, 0, 5, 2},
			yPred: []float64{0, 0, 0, 0},
			want: []ClassCount{
				{Class: 0, Correct: 1, Incorrect: 3},
			},
			warned: []string{"no predicted samples for class 2", "no predicted samples for class 5"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var warned []string
			errors.SetZerologWarnFunc(nil)
			errors.SetWarningHandler(func(w error) {
				var um *errors.UndefinedMetricWarning
				if !errors.As(w, &um) {
					t.Errorf("unexpected warning %T: %v", w, w)
					return
				}
				if um.Metric != "precision" || um.Result != 0 {
					t.Errorf("warning = %+v", um)
				}
				warned = append(warned, um.Condition)
			})
			t.Cleanup(func() { errors.SetWarningHandler(nil) })

			n := len(tt.yTrue)
			got, err := ClassCounts(mat.NewDense(n, 1, tt.yTrue), mat.NewDense(n, 1, tt.yPred))
			if err != nil {
				t.Fatalf("ClassCounts: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ClassCounts mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.warned, warned); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func BenchmarkAccuracy(b *testing.B) {
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		yTrue[i] = float64(i % 3)
		yPred[i] = float64((i / 2) % 3)
	}
	vt := mat.NewVecDense(n, yTrue)
	vp := mat.NewVecDense(n, yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Accuracy(vt, vp)
	}
}
