package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/proxy-vitals/internal/aggregator"
	"github.com/proxy-vitals/internal/metrics"
	"github.com/proxy-vitals/internal/progress"
	"github.com/proxy-vitals/internal/proxyspec"
	"github.com/proxy-vitals/internal/types"
	log "github.com/sirupsen/logrus"
)

// ProbeFunc verifies one proxy and returns its terminal outcome.
type ProbeFunc func(ctx context.Context, spec proxyspec.Spec) types.Outcome

// Update is emitted to the progress callback after every completed probe.
type Update struct {
	Outcome      types.Outcome
	Processed    int
	Total        int
	WorkingCount int
	FailedCount  int
	ETA          string
	Speed        string
}

// ProgressFunc receives per-completion progress updates. The pool makes no
// assumption about how updates are displayed.
type ProgressFunc func(Update)

// Pool dispatches proxy specs to a fixed number of workers, pull-based: a
// worker that lands a slow proxy does not block the others.
type Pool struct {
	probe      ProbeFunc
	metrics    *metrics.Collector
	windowSize int
	onProgress ProgressFunc
}

func NewPool(probe ProbeFunc, metricsCollector *metrics.Collector, etaWindowSize int, onProgress ProgressFunc) *Pool {
	return &Pool{
		probe:      probe,
		metrics:    metricsCollector,
		windowSize: etaWindowSize,
		onProgress: onProgress,
	}
}

// DefaultSize reserves one execution unit for coordination and I/O.
func DefaultSize() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Run probes every spec through size workers and returns the partitioned
// results. Every submitted spec yields exactly one outcome; on context
// cancellation dispatch stops promptly, in-flight probes drain, and the
// partial result set is returned.
func (p *Pool) Run(ctx context.Context, specs []proxyspec.Spec, size int) *aggregator.ResultSet {
	if size <= 0 {
		size = DefaultSize()
	}

	total := len(specs)
	log.Infof("Starting proxy check: %d proxies, workers=%d", total, size)
	startTime := time.Now()

	jobs := make(chan proxyspec.Spec)
	outcomes := make(chan types.Outcome, size)

	// Dispatch stops as soon as the context is cancelled; specs never
	// handed to a worker produce no outcome.
	go func() {
		defer close(jobs)
		for _, spec := range specs {
			select {
			case <-ctx.Done():
				return
			case jobs <- spec:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range jobs {
				outcomes <- p.safeProbe(ctx, spec)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single-consumer loop: the aggregator and tracker are only ever
	// touched from here, workers never update shared state directly.
	agg := aggregator.NewAggregator()
	tracker := progress.NewTracker(p.windowSize)
	processed := 0

	for outcome := range outcomes {
		agg.Record(outcome)
		tracker.RecordCompletion()
		processed++

		if p.metrics != nil {
			if outcome.Alive {
				p.metrics.RecordProbeSuccess()
				p.metrics.RecordProbeDuration(float64(outcome.ResponseTimeMs) / 1000.0)
			} else {
				p.metrics.RecordProbeFailure(string(outcome.Reason))
			}
		}

		if p.onProgress != nil {
			working, failed := agg.Counts()
			p.onProgress(Update{
				Outcome:      outcome,
				Processed:    processed,
				Total:        total,
				WorkingCount: working,
				FailedCount:  failed,
				ETA:          tracker.FormatETA(total, processed),
				Speed:        tracker.FormatRate(),
			})
		}
	}

	duration := time.Since(startTime)
	working, failed := agg.Counts()
	log.Infof("Check complete: %d/%d processed (%d working, %d failed) in %v (%.1f checks/sec)",
		processed, total, working, failed, duration, float64(processed)/duration.Seconds())

	if p.metrics != nil {
		p.metrics.SetWorkingProxies(working)
		p.metrics.SetFailedProxies(failed)
	}

	return agg.Finalize()
}

// safeProbe contains worker faults: a panic inside one probe becomes a
// per-proxy failure outcome instead of taking down the pool.
func (p *Pool) safeProbe(ctx context.Context, spec proxyspec.Spec) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Worker fault while probing %s: %v", spec.Addr(), r)
			outcome = types.Outcome{
				Proxy:  spec.Raw,
				Alive:  false,
				Reason: types.ReasonWorkerFault,
				Error:  fmt.Sprintf("worker fault: %v", r),
			}
		}
	}()

	return p.probe(ctx, spec)
}
