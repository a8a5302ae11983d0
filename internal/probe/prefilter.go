package probe

import (
	"context"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proxy-vitals/internal/proxyspec"
	log "github.com/sirupsen/logrus"
)

// FastConnectFilter performs TCP-only connection pre-filtering
// This quickly filters out dead proxies before running full HTTP probes.
// Specs split into connectable and failed; a spec whose connect was never
// attempted (or was cut short by cancellation) lands in neither slice, so
// an interrupted pass cannot fabricate failure records.
func FastConnectFilter(ctx context.Context, specs []proxyspec.Spec, timeoutMs int, concurrency int) (connectable, failed []proxyspec.Spec) {
	if len(specs) == 0 {
		return nil, nil
	}

	log.Infof("Starting fast TCP filter: %d proxies, concurrency=%d, timeout=%dms",
		len(specs), concurrency, timeoutMs)

	startTime := time.Now()
	timeout := time.Duration(timeoutMs) * time.Millisecond

	connectable = make([]proxyspec.Spec, 0, len(specs)/5) // Estimate ~20% alive
	failed = make([]proxyspec.Spec, 0)
	var mu sync.Mutex

	// Semaphore for concurrency control
	sem := make(chan struct{}, concurrency)

	// Progress tracking
	var completed atomic.Int64
	var successful atomic.Int64
	progressTicker := time.NewTicker(5 * time.Second)
	defer progressTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-progressTicker.C:
				current := completed.Load()
				success := successful.Load()
				percent := float64(current) / float64(len(specs)) * 100.0
				log.Infof("Fast filter progress: %d/%d (%.1f%%), connectable=%d, goroutines=%d",
					current, len(specs), percent, success, runtime.NumGoroutine())
			}
		}
	}()

	var wg sync.WaitGroup

	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{} // Acquire semaphore
		wg.Add(1)

		go func(s proxyspec.Spec) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore

			// TCP connect test
			if testTCPConnection(ctx, s.Addr(), timeout) {
				mu.Lock()
				connectable = append(connectable, s)
				mu.Unlock()
				successful.Add(1)
			} else if ctx.Err() == nil {
				// Only a completed, genuinely failed connect counts;
				// a dial aborted by cancellation proves nothing
				mu.Lock()
				failed = append(failed, s)
				mu.Unlock()
			}

			completed.Add(1)
		}(spec)
	}

	wg.Wait()

	duration := time.Since(startTime)
	untested := len(specs) - len(connectable) - len(failed)
	filterRate := float64(len(failed)) / float64(len(specs)) * 100.0

	log.Infof("Fast filter complete: %d/%d connectable, %d failed, %d untested (%.1f%% filtered out) in %v (%.0f tests/sec)",
		len(connectable), len(specs), len(failed), untested, filterRate, duration, float64(len(specs))/duration.Seconds())

	return connectable, failed
}

// testTCPConnection tests if a TCP connection can be established
func testTCPConnection(ctx context.Context, address string, timeout time.Duration) bool {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
