package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkers(t *testing.T) {
	cpus := runtime.NumCPU()
	tests := []struct {
		nJobs int
		want  int
	}{
		{0, 1},
		{1, 1},
		{4, 4},
		{-1, cpus},
	}
	for _, tt := range tests {
		if got := Workers(tt.nJobs); got != tt.want {
			t.Errorf("Workers(%d) = %d, want %d", tt.nJobs, got, tt.want)
		}
	}
	if got := Workers(-cpus - 5); got != 1 {
		t.Errorf("Workers(very negative) = %d, want 1", got)
	}
}

func TestParallelizeCoversEveryItem(t *testing.T) {
	for _, items := range []int{0, 1, 7, 100, 1001} {
		hits := make([]int32, items)
		ParallelizeN(4, items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("items=%d: index %d visited %d times", items, i, h)
			}
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(4, 10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("expected a single range [0,10), got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestParallelizeWithThresholdSplits(t *testing.T) {
	var calls int64
	hits := make([]int32, 200)
	ParallelizeWithThreshold(4, len(hits), 100, func(start, end int) {
		atomic.AddInt64(&calls, 1)
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	if calls != 4 {
		t.Errorf("expected 4 ranges, got %d", calls)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestParallelizeWithThresholdEmpty(t *testing.T) {
	ParallelizeWithThreshold(4, 0, 100, func(start, end int) {
		t.Errorf("unexpected call [%d,%d)", start, end)
	})
}

func TestForEach(t *testing.T) {
	var sum int64
	err := ForEach(context.Background(), 3, 50, func(_ context.Context, i int) error {
		atomic.AddInt64(&sum, int64(i))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if sum != 49*50/2 {
		t.Errorf("sum = %d, want %d", sum, 49*50/2)
	}
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran int64
	err := ForEach(context.Background(), 1, 100, func(_ context.Context, i int) error {
		atomic.AddInt64(&ran, 1)
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran >= 100 {
		t.Errorf("expected early stop, ran %d tasks", ran)
	}
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 2, 10, func(context.Context, int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
