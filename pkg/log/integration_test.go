package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"

	mserrors "github.com/YuminosukeSato/modelsearch/pkg/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationSearch)
	testLogger.Warn("warning message", ErrorCodeKey, ErrorConvergence)
	testLogger.Error("error message", fmt.Errorf("fold failed"), FoldKey, 2)

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty string")
	}
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}
	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 log entries, got %d", len(entries))
	}
	if entries[0]["key1"] != "value1" {
		t.Errorf("key1 = %v, want value1", entries[0]["key1"])
	}
	// JSON unmarshaling converts numbers to float64
	if entries[0]["number"] != 42.0 {
		t.Errorf("number = %v, want 42", entries[0]["number"])
	}
	if entries[2][ErrorCodeKey] != ErrorConvergence {
		t.Errorf("%s = %v", ErrorCodeKey, entries[2][ErrorCodeKey])
	}
	if entries[3][ErrAttrKey] != "fold failed" {
		t.Error("Leading error was not attached as the error attribute")
	}
	if entries[3][FoldKey] != 2.0 {
		t.Error("Fields after the leading error were lost")
	}
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	searchLogger := testLogger.With(
		ModelNameKey, "SVM",
		ComponentKey, "model_selection",
	)
	searchLogger.Info("candidate scored", CandidateKey, 3, CVMeanScoreKey, 0.875)

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	want := map[string]interface{}{
		ModelNameKey:   "SVM",
		ComponentKey:   "model_selection",
		CandidateKey:   3.0,
		CVMeanScoreKey: 0.875,
	}
	for k, v := range want {
		if entries[0][k] != v {
			t.Errorf("Field %s: expected %v, got %v", k, v, entries[0][k])
		}
	}
}

func TestTestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelInfo) {
		t.Error("Logger should be enabled for Info level")
	}
	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")
	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

func TestTestLoggerProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("experiment").Info("named logger message")

	out := buffer.String()
	for _, s := range []string{"provider test message", "named logger message", "experiment"} {
		if !strings.Contains(out, s) {
			t.Errorf("%q not found in provider output", s)
		}
	}

	provider.SetLevel(LevelError)
	provider.GetLogger().Info("suppressed")
	if strings.Contains(buffer.String(), "suppressed") {
		t.Error("SetLevel did not raise the threshold")
	}
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				testLogger.Info("fold scored", "worker", id, FoldKey, j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Errorf("Expected %d log entries, got %d", workers*perWorker, len(entries))
	}
}

func TestZerologLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelInfo, false)

	logger := p.GetLoggerWithName("model_selection").With(ModelNameKey, "RF")
	logger.Debug("hidden")
	logger.Info("grid search finished", CandidatesKey, 12, CVMeanScoreKey, 0.9)
	logger.Error("refit failed", errors.New("boom"), CandidateKey, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %s", len(lines), buf.String())
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first["message"] != "grid search finished" {
		t.Errorf("message = %v", first["message"])
	}
	if first[ComponentKey] != "model_selection" || first[ModelNameKey] != "RF" {
		t.Errorf("context fields missing: %v", first)
	}
	if first[CandidatesKey] != 12.0 {
		t.Errorf("%s = %v, want 12", CandidatesKey, first[CandidatesKey])
	}

	var second map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if second[ErrAttrKey] != "boom" {
		t.Errorf("error attribute = %v, want boom", second[ErrAttrKey])
	}
	if second["level"] != "error" {
		t.Errorf("level = %v, want error", second["level"])
	}
}

func TestZerologLoggerEnabled(t *testing.T) {
	p := NewZerologProvider(&bytes.Buffer{}, LevelWarn, false)
	logger := p.GetLogger()
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("Info should be disabled at Warn")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("Error should be enabled at Warn")
	}

	p.SetLevel(LevelDebug)
	if !p.GetLogger().Enabled(ctx, LevelDebug) {
		t.Error("SetLevel(Debug) did not take effect")
	}
}

func TestSetProviderRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	SetProvider(NewZerologProvider(&buf, LevelDebug, false))
	t.Cleanup(func() {
		SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo, false))
	})

	mserrors.Warn(mserrors.NewConvergenceWarning("MLPClassifier", 200, "maximum iterations reached"))

	out := buf.String()
	if !strings.Contains(out, "MLPClassifier") {
		t.Errorf("warning was not routed to the provider: %q", out)
	}
	if !strings.Contains(out, `"component":"warnings"`) && !strings.Contains(out, `"ml.component":"warnings"`) {
		t.Errorf("warning record lacks component: %q", out)
	}
	if !strings.Contains(out, `"error.code":"CONVERGENCE_FAILURE"`) {
		t.Errorf("warning record lacks error code: %q", out)
	}
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	if err := Setup(&bytes.Buffer{}, Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Setup(&bytes.Buffer{}, Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	t.Cleanup(func() {
		SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo, false))
	})
	if err := Setup(&bytes.Buffer{}, Config{Level: "warn", Format: "json"}); err != nil {
		t.Errorf("Setup: %v", err)
	}
}
