package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	mserrors "github.com/YuminosukeSato/modelsearch/pkg/errors"
)

func TestErrFmtHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil)))

	err := mserrors.Wrap(
		mserrors.NewCandidateError(2, 1, map[string]interface{}{"clf__C": 0.5}, mserrors.New("singular matrix")),
		"LR search")
	logger.Error("Grid search failed", ErrAttr(err))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if rec[CandidateKey] != float64(2) || rec[FoldKey] != float64(1) {
		t.Errorf("candidate attributes missing: %v", rec)
	}
	if params, ok := rec[ParamsKey].(map[string]interface{}); !ok || params["clf__C"] != 0.5 {
		t.Errorf("params attribute = %v", rec[ParamsKey])
	}
	if rec[StacktraceAttrKey] == nil || rec[StacktraceAttrKey] == "" {
		t.Errorf("stacktrace missing: %v", rec)
	}
	if s, _ := rec[ErrorTypeKey].(string); s == "" {
		t.Errorf("%s missing: %v", ErrorTypeKey, rec)
	}
}

func TestErrFmtHandler_NoError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("Fold scored", FoldKey, 0)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec[StacktraceAttrKey]; ok {
		t.Errorf("unexpected stacktrace: %v", rec)
	}
	if _, ok := rec[ErrorTypeKey]; ok {
		t.Errorf("unexpected error type: %v", rec)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not fitted", mserrors.NewNotFittedError("SVC", "Predict"), ErrorNotFitted},
		{"dimension", mserrors.Wrap(mserrors.NewDimensionError("Predict", 4, 3, 1), "LR search"), ErrorDimensionMismatch},
		{"empty data", mserrors.Wrap(mserrors.ErrEmptyData, "TrainTestSplit"), ErrorEmptyData},
		{"validation", mserrors.NewValidationError("cv", "must be at least 2", 1), ErrorInvalidInput},
		{"value", mserrors.NewValueError("TrainTestSplit", "test set would be empty"), ErrorInvalidInput},
		{"convergence", mserrors.NewConvergenceWarning("MLPClassifier", 200, ""), ErrorConvergence},
		{"instability", mserrors.NewNumericalInstabilityError("LogisticRegression.Fit", nil, 3), ErrorConvergence},
		{"other", mserrors.New("singular matrix"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrFmtHandler_ErrorCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Error("Prediction failed", ErrAttr(mserrors.NewNotFittedError("MLPClassifier", "Predict")))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec[ErrorCodeKey] != ErrorNotFitted {
		t.Errorf("%s = %v, want %s", ErrorCodeKey, rec[ErrorCodeKey], ErrorNotFitted)
	}
}
