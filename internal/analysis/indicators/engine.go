// Package indicators provides the technical indicators used for regime
// classification, computed on raw price series and runnable in parallel.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regime-trader/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Results holds the output of a parallel calculation, keyed by indicator
// name. Multi-value indicators are flattened as "<name>.<series>".
type Results map[string][]float64

// Names returns the result keys in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine provides parallel indicator calculation using a worker pool.
type Engine struct {
	workers     int
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
	mu          sync.RWMutex
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:     workers,
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// DefaultEngine returns an engine with the indicator set the market
// snapshot is built from.
func DefaultEngine(workers int) *Engine {
	e := NewEngine(workers)
	e.RegisterIndicator(NewRSI(14))
	e.RegisterIndicator(NewEMA(20))
	e.RegisterIndicator(NewEMA(50))
	e.RegisterIndicator(NewEMA(100))
	e.RegisterIndicator(NewATR(14))
	e.RegisterMultiIndicator(NewMACD(12, 26, 9))
	e.RegisterMultiIndicator(NewBollingerBands(20, 2))
	e.RegisterMultiIndicator(NewStochastic(14, 3, 3))
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

type job struct {
	single Indicator
	multi  MultiValueIndicator
}

// CalculateAll calculates all registered indicators in parallel. The first
// indicator error aborts the result.
func (e *Engine) CalculateAll(ctx context.Context, candles []models.Candle) (Results, error) {
	e.mu.RLock()
	jobs := make([]job, 0, len(e.indicators)+len(e.multiIndics))
	for _, ind := range e.indicators {
		jobs = append(jobs, job{single: ind})
	}
	for _, ind := range e.multiIndics {
		jobs = append(jobs, job{multi: ind})
	}
	e.mu.RUnlock()

	results := make(Results)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	work := make(chan job, len(jobs))
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				if ctx.Err() != nil {
					return
				}
				if j.single != nil {
					values, err := j.single.Calculate(candles)
					mu.Lock()
					if err != nil && firstErr == nil {
						firstErr = fmt.Errorf("%s: %w", j.single.Name(), err)
					} else if err == nil {
						results[j.single.Name()] = values
					}
					mu.Unlock()
					continue
				}
				values, err := j.multi.Calculate(candles)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", j.multi.Name(), err)
				} else if err == nil {
					for key, series := range values {
						results[j.multi.Name()+"."+key] = series
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, j := range jobs {
		work <- j
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, candles []models.Candle) ([]float64, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return ind.Calculate(candles)
	}
}

// ListIndicators returns the sorted names of all registered indicators.
func (e *Engine) ListIndicators() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators)+len(e.multiIndics))
	for name := range e.indicators {
		names = append(names, name)
	}
	for name := range e.multiIndics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
