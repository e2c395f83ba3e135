package experiment

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/YuminosukeSato/modelsearch/preprocessing"
	"github.com/YuminosukeSato/modelsearch/sklearn/model_selection"
	"github.com/YuminosukeSato/modelsearch/sklearn/pipeline"
)

func TestGetPipes(t *testing.T) {
	pipes := GetPipes(42)
	if len(pipes) != 4 {
		t.Fatalf("got %d pipelines, want 4", len(pipes))
	}
	for _, key := range []string{"lr", "rf", "svm", "mlp"} {
		p, ok := pipes[key]
		if !ok {
			t.Fatalf("missing pipeline %q", key)
		}
		if diff := cmp.Diff([]string{"scl", "clf"}, p.Steps()); diff != "" {
			t.Errorf("%s steps (-want +got):\n%s", key, diff)
		}
		scl, _ := p.NamedStep("scl")
		if _, ok := scl.(*preprocessing.StandardScaler); !ok {
			t.Errorf("%s scaler is %T", key, scl)
		}
		if got := p.GetParams()["clf__random_state"]; got != int64(42) {
			t.Errorf("%s clf__random_state = %v (%T), want 42", key, got, got)
		}
	}
}

func TestNewPipes_Scaler(t *testing.T) {
	pipes, err := NewPipes("minmax", 1)
	if err != nil {
		t.Fatalf("NewPipes: %v", err)
	}
	scl, _ := pipes["svm"].NamedStep("scl")
	if _, ok := scl.(*preprocessing.MinMaxScaler); !ok {
		t.Errorf("scaler is %T, want *MinMaxScaler", scl)
	}
	if _, err := NewPipes("robust", 1); err == nil {
		t.Error("expected an error for an unknown scaler")
	}
}

func TestGetGrids(t *testing.T) {
	want := map[string]int{"lr": 6, "rf": 6, "svm": 6, "mlp": 8}
	grids := GetGrids()
	pipes := GetPipes(0)
	for key, n := range want {
		candidates, err := model_selection.ParameterGrid(grids[key])
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		if len(candidates) != n {
			t.Errorf("%s: %d candidates, want %d", key, len(candidates), n)
		}
		// every candidate must be accepted by its pipeline
		for _, c := range candidates {
			if err := pipes[key].Clone().SetParams(c); err != nil {
				t.Errorf("%s: SetParams(%v): %v", key, c, err)
			}
		}
	}
}

func TestGeneratePipeline(t *testing.T) {
	searches, names := GeneratePipeline(5, 4, 42)
	if diff := cmp.Diff(map[int]string{0: "LR", 1: "RF", 2: "SVM", 3: "MLP"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if len(searches) != 4 {
		t.Fatalf("got %d searches, want 4", len(searches))
	}
	for i, gs := range searches {
		if _, ok := gs.Estimator().(*pipeline.Pipeline); !ok {
			t.Errorf("search %d estimator is %T", i, gs.Estimator())
		}
		wantJobs := 1
		if names[i] == "RF" || names[i] == "SVM" {
			wantJobs = 4
		}
		if gs.NJobs() != wantJobs {
			t.Errorf("%s n_jobs = %d, want %d", names[i], gs.NJobs(), wantJobs)
		}
		if len(gs.ParamGrids()) != 1 {
			t.Errorf("search %d has %d grids", i, len(gs.ParamGrids()))
		}
	}
	if got := searches[3].ParamGrids()[0]["clf__hidden_layer_sizes"]; len(got) != 2 {
		t.Errorf("mlp hidden_layer_sizes candidates = %v", got)
	}
}
