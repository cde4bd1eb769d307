// Package metrics records latency quantiles for remote cache operations so a
// slow restore or save can be attributed to the backend call responsible.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// LatencyTracker tracks latency quantiles per operation using DDSketch.
type LatencyTracker struct {
	mu               sync.Mutex
	ops              map[string]*opSketch
	relativeAccuracy float64
}

type opSketch struct {
	sketch *ddsketch.DDSketch
	errors int64
}

// NewLatencyTracker creates a new latency tracker.
// relativeAccuracy determines the accuracy of quantile estimates (e.g., 0.01 = 1% accuracy).
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		ops:              make(map[string]*opSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records one call of operation that took d. A non-nil err counts the
// call as failed; its latency is recorded either way.
func (lt *LatencyTracker) Record(operation string, d time.Duration, err error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	op, ok := lt.ops[operation]
	if !ok {
		sketch, sketchErr := ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if sketchErr != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		op = &opSketch{sketch: sketch}
		lt.ops[operation] = op
	}

	// Milliseconds.
	op.sketch.Add(float64(d.Microseconds()) / 1000.0)
	if err != nil {
		op.errors++
	}
}

// Time runs fn and records its duration and result under operation.
func (lt *LatencyTracker) Time(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	lt.Record(operation, time.Since(start), err)
	return err
}

// Summary is a snapshot of one operation's latencies, in milliseconds.
type Summary struct {
	Operation string
	Count     int64
	Errors    int64
	Min       float64
	P50       float64
	P90       float64
	P99       float64
	Max       float64
	Sum       float64
}

// Summary returns the latency summary for operation.
func (lt *LatencyTracker) Summary(operation string) (Summary, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.summaryLocked(operation)
}

func (lt *LatencyTracker) summaryLocked(operation string) (Summary, error) {
	op, ok := lt.ops[operation]
	if !ok {
		return Summary{}, fmt.Errorf("no data for operation: %s", operation)
	}

	s := Summary{Operation: operation, Errors: op.errors}
	count := op.sketch.GetCount()
	if count == 0 {
		return s, nil
	}
	s.Count = int64(count)
	s.Min, _ = op.sketch.GetMinValue()
	s.P50, _ = op.sketch.GetValueAtQuantile(0.50)
	s.P90, _ = op.sketch.GetValueAtQuantile(0.90)
	s.P99, _ = op.sketch.GetValueAtQuantile(0.99)
	s.Max, _ = op.sketch.GetMaxValue()
	s.Sum = op.sketch.GetSum()
	return s, nil
}

// Summaries returns a summary for every tracked operation, sorted by name.
func (lt *LatencyTracker) Summaries() []Summary {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	out := make([]Summary, 0, len(lt.ops))
	for operation := range lt.ops {
		if s, err := lt.summaryLocked(operation); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func (s Summary) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d, errors=%d): total=%.2fms min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Errors, s.Sum, s.Min, s.P50, s.P90, s.P99, s.Max)
}
