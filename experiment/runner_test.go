package experiment

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/modelsearch/pkg/errors"
	"github.com/YuminosukeSato/modelsearch/pkg/log"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
)

// blobs returns three well separated clusters of perClass samples each,
// labelled 0, 1 and 2.
func blobs(perClass int) (*mat.Dense, *mat.Dense) {
	centers := [][2]float64{{0, 0}, {6, 6}, {0, 6}}
	rng := rand.New(rand.NewPCG(7, 7))
	n := perClass * len(centers)
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		c := i % len(centers)
		X.Set(i, 0, centers[c][0]+rng.NormFloat64()*0.5)
		X.Set(i, 1, centers[c][1]+rng.NormFloat64()*0.5)
		y.Set(i, 0, float64(c))
	}
	return X, y
}

// smallConfig keeps every grid tiny so the whole run stays fast.
func smallConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ResultsDir = t.TempDir()
	cfg.NJobs = 2
	cfg.Table = false
	cfg.Grids = map[string]model_selection.ParamGrid{
		"lr":  {"clf__C": {0.5, 1}, "clf__solver": {"lbfgs"}},
		"rf":  {"clf__n_estimators": {5}, "clf__criterion": {"gini", "entropy"}},
		"svm": {"clf__kernel": {"rbf"}, "clf__C": {1}},
		"mlp": {"clf__hidden_layer_sizes": {[]int{5}}, "clf__solver": {"adam"}},
	}
	return cfg
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

func quietWarnings(t *testing.T) {
	t.Helper()
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func TestRunPipeline(t *testing.T) {
	quietWarnings(t)
	X, y := blobs(20)
	cfg := smallConfig(t)
	cfg.Plot = true
	logger, _ := log.NewTestLogger(log.LevelInfo)

	r, err := NewRunner(cfg, WithLogger(logger), WithClassNames([]string{"a", "b", "c"}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	var out bytes.Buffer
	results, err := r.RunPipeline(context.Background(), X, y, 3, &out, "all", "blobs")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	gotModels := make([]string, len(results))
	for i, res := range results {
		gotModels[i] = res.Model
	}
	if diff := cmp.Diff([]string{"LR", "RF", "SVM", "MLP"}, gotModels); diff != "" {
		t.Fatalf("model order mismatch (-want +got):\n%s", diff)
	}

	wantCandidates := map[string]int{"LR": 2, "RF": 2, "SVM": 1, "MLP": 1}
	for _, res := range results {
		if res.ScoresPath != filepath.Join(cfg.ResultsDir, "models", res.Model+"_blobs.csv") {
			t.Errorf("%s: scores path %s", res.Model, res.ScoresPath)
		}
		scores := readCSV(t, res.ScoresPath)
		if len(scores) != wantCandidates[res.Model] {
			t.Errorf("%s: %d score lines, want %d", res.Model, len(scores), wantCandidates[res.Model])
		}
		for _, line := range scores {
			if len(line) != len(res.BestParams)+1 {
				t.Errorf("%s: line %v has %d fields", res.Model, line, len(line))
			}
			mean, err := strconv.ParseFloat(line[len(line)-1], 64)
			if err != nil || mean < 0 || mean > 1 {
				t.Errorf("%s: bad mean field %q", res.Model, line[len(line)-1])
			}
		}

		counts := readCSV(t, filepath.Join(cfg.ResultsDir, "counts", "count_"+res.Model+"_blobs.csv"))
		if diff := cmp.Diff([]string{"Class", "Correct", "incorrect"}, counts[0]); diff != "" {
			t.Errorf("%s: counts header (-want +got):\n%s", res.Model, diff)
		}
		total := 0
		for _, line := range counts[1:] {
			if !strings.Contains("abc", line[0]) {
				t.Errorf("%s: class %q not a class name", res.Model, line[0])
			}
			c, _ := strconv.Atoi(line[1])
			ic, _ := strconv.Atoi(line[2])
			total += c + ic
		}
		if total != 20 { // ceil(0.33 * 60)
			t.Errorf("%s: counts cover %d samples, want 20", res.Model, total)
		}

		if _, err := os.Stat(res.PlotPath); err != nil {
			t.Errorf("%s: plot not written: %v", res.Model, err)
		}
	}

	if results[0].Accuracy < 0.9 {
		t.Errorf("LR held-out accuracy %.3f on separable data", results[0].Accuracy)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("summary has %d lines, want 4:\n%s", len(lines), out.String())
	}
	for i, line := range lines {
		fields := strings.Split(line, ",")
		if len(fields) != 5 || fields[0] != gotModels[i] || fields[1] != "all" {
			t.Errorf("summary line %q", line)
		}
		if dot := strings.IndexByte(fields[2], '.'); dot < 0 || len(fields[2])-dot-1 != 2 {
			t.Errorf("accuracy field %q not fixed to 2 decimals", fields[2])
		}
		if dot := strings.IndexByte(fields[3], '.'); dot < 0 || len(fields[3])-dot-1 != 3 {
			t.Errorf("mse field %q not fixed to 3 decimals", fields[3])
		}
	}

	for _, msg := range []string{"Data split", "Best params", "Model evaluated", "Best model"} {
		if !logger.ContainsMessage(msg) {
			t.Errorf("missing log message %q", msg)
		}
	}
	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatalf("GetLogEntries: %v", err)
	}
	evaluated := 0
	for _, e := range entries {
		if e["message"] != "Model evaluated" {
			continue
		}
		evaluated++
		if e[log.PhaseKey] != log.PhaseTesting || e[log.OperationKey] != log.OperationScore {
			t.Errorf("evaluation record lacks phase or operation: %v", e)
		}
	}
	if evaluated != 4 {
		t.Errorf("%d evaluation records, want 4", evaluated)
	}
}

func TestRunPipeline_CandidateFailureStopsRun(t *testing.T) {
	quietWarnings(t)
	X, y := blobs(10)
	cfg := smallConfig(t)
	cfg.Grids["svm"] = model_selection.ParamGrid{"clf__kernel": {"bogus"}}

	r, err := NewRunner(cfg, WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	var out bytes.Buffer
	results, err := r.RunPipeline(context.Background(), X, y, 3, &out, "all", "bad")
	if err == nil {
		t.Fatal("expected an error from the SVM search")
	}
	var ce *errors.CandidateError
	if !errors.As(err, &ce) {
		t.Errorf("error %v is not a CandidateError", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d completed results, want 2 (LR, RF)", len(results))
	}
	if n := strings.Count(out.String(), "\n"); n != 2 {
		t.Errorf("summary has %d lines, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(cfg.ResultsDir, "counts", "count_SVM_bad.csv")); !os.IsNotExist(err) {
		t.Errorf("SVM counts file should not exist, stat err = %v", err)
	}
}

func TestRunPipeline_Cancelled(t *testing.T) {
	X, y := blobs(10)
	r, err := NewRunner(smallConfig(t), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if _, err := r.RunPipeline(ctx, X, y, 3, &out, "all", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("summary written after cancellation: %q", out.String())
	}
}

func TestRunPipeline_TooFewSamples(t *testing.T) {
	X := mat.NewDense(1, 2, []float64{1, 2})
	y := mat.NewDense(1, 1, []float64{0})
	r, err := NewRunner(smallConfig(t), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	var out bytes.Buffer
	if _, err := r.RunPipeline(context.Background(), X, y, 3, &out, "all", "x"); err == nil {
		t.Error("expected split error for a single sample")
	}
}

func TestResult_SummaryFields(t *testing.T) {
	tests := []struct {
		name    string
		acc     float64
		mse     float64
		elapsed time.Duration
		want    []string
	}{
		{"rounded", 0.956, 0.12345, 1234 * time.Millisecond, []string{"SVM", "s1", "0.96", "0.123", "1.23"}},
		{"ties to even", 0.125, 0.0625, 1125 * time.Millisecond, []string{"SVM", "s1", "0.12", "0.062", "1.12"}},
		{"ties to even upward", 0.375, 0.8125, 0, []string{"SVM", "s1", "0.38", "0.812", "0.00"}},
		{"perfect", 1, 0, 0, []string{"SVM", "s1", "1.00", "0.000", "0.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{Model: "SVM", Sub: "s1", Accuracy: tt.acc, MSE: tt.mse, Elapsed: tt.elapsed}
			got := res.SummaryFields()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SummaryFields mismatch (-want +got):\n%s", diff)
			}
			if want := fmt.Sprintf("%.2f", tt.acc); got[2] != want {
				t.Errorf("accuracy %q, printf gives %q", got[2], want)
			}
			if want := fmt.Sprintf("%.3f", tt.mse); got[3] != want {
				t.Errorf("mse %q, printf gives %q", got[3], want)
			}
		})
	}
}

func TestBestResult(t *testing.T) {
	tests := []struct {
		name string
		accs []float64
		want int
	}{
		{"empty", nil, -1},
		{"single", []float64{0.5}, 0},
		{"max", []float64{0.5, 0.9, 0.7}, 1},
		{"first on tie", []float64{0.8, 0.9, 0.9}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]Result, len(tt.accs))
			for i, a := range tt.accs {
				results[i].Accuracy = a
			}
			if got := BestResult(results); got != tt.want {
				t.Errorf("BestResult = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatParams(t *testing.T) {
	got := formatParams(map[string]interface{}{
		"clf__solver":             "lbfgs",
		"clf__C":                  0.5,
		"clf__hidden_layer_sizes": []int{10, 5},
	})
	want := "{'clf__C': 0.5, 'clf__hidden_layer_sizes': (10, 5), 'clf__solver': 'lbfgs'}"
	if got != want {
		t.Errorf("formatParams = %s, want %s", got, want)
	}
}

func TestRenderTable(t *testing.T) {
	results := []Result{
		{Model: "LR", Sub: "s", Accuracy: 0.8, BestCVScore: 0.75, BestParams: map[string]interface{}{"clf__C": 1}},
		{Model: "RF", Sub: "s", Accuracy: 0.9, BestCVScore: 0.85, BestParams: map[string]interface{}{"clf__n_estimators": 20}},
	}
	out := RenderTable(results)
	for _, want := range []string{"MODEL", "LR", "RF", "0.750", "0.90", "{'clf__n_estimators': 20}"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
