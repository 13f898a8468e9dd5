package performance

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"regime-trader/internal/analysis/indicators"
	"regime-trader/internal/models"
)

// BenchmarkWorkerPool benchmarks the worker pool performance.
func BenchmarkWorkerPool(b *testing.B) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		if err := pool.Submit(ctx, func() { wg.Done() }); err != nil {
			b.Fatal(err)
		}
		wg.Wait()
	}
}

// BenchmarkIndicatorEngine compares sequential and parallel indicator
// calculation.
func BenchmarkIndicatorEngine(b *testing.B) {
	candles := generateTestCandles(500)
	engine := indicators.DefaultEngine(4)

	b.Run("Sequential", func(b *testing.B) {
		closes := models.Closes(candles)
		for i := 0; i < b.N; i++ {
			indicators.CalculateRSI(closes, 14)
			indicators.CalculateEMA(closes, 20)
			indicators.CalculateATR(candles, 14)
			indicators.CalculateMACD(closes, 12, 26, 9)
			indicators.CalculateBollinger(closes, 20, 2)
			indicators.CalculateStochastic(candles, 14, 3, 3)
		}
	})

	b.Run("Parallel", func(b *testing.B) {
		ctx := context.Background()
		for i := 0; i < b.N; i++ {
			engine.CalculateAll(ctx, candles)
		}
	})
}

func generateTestCandles(count int) []models.Candle {
	candles := make([]models.Candle, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 50_000.0
	for i := range candles {
		price *= 1 + math.Sin(float64(i)/10)*0.002
		candles[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      price,
			High:      price * 1.004,
			Low:       price * 0.996,
			Close:     price,
			Volume:    1_000 + float64(i%7)*100,
		}
	}
	return candles
}

func TestWorkerPoolFunctionality(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()

	var counter int64
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := pool.Submit(ctx, func() {
			atomic.AddInt64(&counter, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for tasks to complete")
	}

	pool.Stop()

	if counter != 100 {
		t.Errorf("Expected 100 tasks completed, got %d", counter)
	}
	if stats := pool.Stats(); stats.TasksTotal != 100 || stats.Running {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSubmitToStoppedPool(t *testing.T) {
	pool := NewWorkerPool(1)
	if err := pool.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit() before Start error = %v, want ErrPoolStopped", err)
	}

	pool.Start()
	pool.Stop()
	if err := pool.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrPoolStopped", err)
	}
}

func TestRunAllPreservesOrder(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Start()
	defer pool.Stop()

	tasks := make([]Task[int], 20)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(20-i) * 100 * time.Microsecond)
			return i * i, nil
		}
	}

	results, err := RunAll(context.Background(), pool, tasks)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("results[%d] = %d, want %d", i, r, i*i)
		}
	}
}

func TestRunAllCollectsErrors(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Stop()

	boom := errors.New("boom")
	var ran atomic.Int32
	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { ran.Add(1); return "a", nil },
		func(ctx context.Context) (string, error) { ran.Add(1); return "", boom },
		func(ctx context.Context) (string, error) { ran.Add(1); panic("bad task") },
	}

	results, err := RunAll(context.Background(), pool, tasks)
	if !errors.Is(err, boom) {
		t.Errorf("RunAll() error = %v, want boom", err)
	}
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("RunAll() error = %v, want panic report", err)
	}
	if ran.Load() != 3 {
		t.Errorf("ran %d tasks, want 3", ran.Load())
	}
	if results[0] != "a" {
		t.Errorf("results[0] = %q", results[0])
	}
}

func TestBatchProcessorFunctionality(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batch := make([]int, len(items))
		copy(batch, items)
		batches = append(batches, batch)
		return nil
	})

	for i := 0; i < 12; i++ {
		if err := processor.Add(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := processor.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 5 || len(batches[1]) != 5 || len(batches[2]) != 2 {
		t.Error("Batch sizes incorrect")
	}
	if processor.Processed() != 12 {
		t.Errorf("Processed() = %d, want 12", processor.Processed())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStats(t *testing.T) {
	if s := MemoryStats(); s.Goroutines < 1 || s.Sys == 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}
