package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/proxy-vitals/internal/aggregator"
	"github.com/proxy-vitals/internal/api"
	"github.com/proxy-vitals/internal/config"
	"github.com/proxy-vitals/internal/metrics"
	"github.com/proxy-vitals/internal/pool"
	"github.com/proxy-vitals/internal/probe"
	"github.com/proxy-vitals/internal/proxyspec"
	"github.com/proxy-vitals/internal/snapshot"
	"github.com/proxy-vitals/internal/storage"
	"github.com/proxy-vitals/internal/types"
	log "github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	inputPath := flag.String("input", "proxies.txt", "path to proxy list (username:password@host:port per line)")
	workingPath := flag.String("working", "", "override output path for working proxies")
	failedPath := flag.String("failed", "", "override output path for failed proxies")
	concurrency := flag.Int("concurrency", 0, "override worker count (0 = CPUs-1)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Infof("Starting proxy-vitals v%s", version)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set log level and format
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	// Flag overrides
	if *workingPath != "" {
		cfg.Output.WorkingPath = *workingPath
	}
	if *failedPath != "" {
		cfg.Output.FailedPath = *failedPath
	}
	if *concurrency > 0 {
		cfg.Pool.Concurrency = *concurrency
	}

	// Set GOMAXPROCS to use all available CPUs
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)

	// Read and parse input
	inputFile, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}

	specs, malformed, err := proxyspec.ParseAll(inputFile)
	inputFile.Close()
	if err != nil {
		log.Fatalf("Failed to read input file: %v", err)
	}

	// Fatal startup condition: nothing valid to check
	if len(specs) == 0 {
		log.Fatalf("No valid proxies found in %s (%d malformed lines)", *inputPath, len(malformed))
	}
	log.Infof("Loaded %d valid proxies from %s (%d malformed lines skipped)",
		len(specs), *inputPath, len(malformed))

	// Initialize metrics
	metricsCollector := metrics.NewCollector(cfg.Metrics.Namespace)

	// Initialize snapshot manager (with optional persistence backend)
	var store storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.NewStorage(cfg.Storage.Type, cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		defer store.Close()
	}
	snapshotMgr := snapshot.NewManager(store, cfg.Storage.PersistIntervalSeconds)
	defer snapshotMgr.Close()

	// Start status API (if enabled)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, snapshotMgr, metricsCollector)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Status API failed: %v", err)
			}
		}()
	}

	// Context for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received %v, stopping dispatch...", sig)
		cancel()
	}()

	// Fast TCP prefilter for large inputs: specs whose connect genuinely
	// failed are recorded as connection failures without spending a full
	// probe. Specs the filter never got to test (interrupted run) are
	// omitted from the output rather than given made-up outcomes.
	var prefiltered []types.Failure
	if cfg.Probe.EnablePrefilter && len(specs) > cfg.Probe.PrefilterMinProxies {
		connectable, failedConnect := probe.FastConnectFilter(ctx, specs,
			cfg.Probe.PrefilterTimeoutMs, cfg.Probe.PrefilterConcurrency)

		for _, s := range failedConnect {
			prefiltered = append(prefiltered, types.Failure{
				Proxy:  s.Raw,
				Reason: types.ReasonConnectionError,
				Error:  "tcp connect failed in prefilter",
			})
		}
		if untested := len(specs) - len(connectable) - len(failedConnect); untested > 0 {
			log.Warnf("Prefilter interrupted: %d proxies were never tested and are omitted from results", untested)
		}
		specs = connectable
	}

	// Run the pool
	startedAt := time.Now()
	executor := probe.NewExecutor(cfg.Probe, metricsCollector)
	renderer := newProgressRenderer(snapshotMgr, startedAt)

	checkPool := pool.NewPool(executor.Probe, metricsCollector, cfg.Pool.ETAWindowSize, renderer.onUpdate)
	results := checkPool.Run(ctx, specs, cfg.Pool.Concurrency)

	// Fold in the failures that never reached the pool
	for _, f := range prefiltered {
		results.NotWorking = append(results.NotWorking, f)
	}
	for _, line := range malformed {
		results.NotWorking = append(results.NotWorking, types.Failure{
			Proxy:  line,
			Reason: types.ReasonInvalidFormat,
			Error:  "line does not match username:password@host:port",
		})
	}

	// Write output artifacts
	if err := writeJSON(cfg.Output.WorkingPath, results.Working); err != nil {
		log.Fatalf("Failed to write working proxies: %v", err)
	}
	if err := writeJSON(cfg.Output.FailedPath, results.NotWorking); err != nil {
		log.Fatalf("Failed to write failed proxies: %v", err)
	}

	logRunSummary(results, startedAt)

	// Shut down the API before exiting
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Status API shutdown error: %v", err)
		}
	}

	if ctx.Err() != nil {
		// os.Exit skips the deferred cleanups, so run them here
		log.Warn("Run was interrupted, results are partial")
		snapshotMgr.Close()
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
}

// progressRenderer turns per-completion pool updates into throttled log
// lines and live snapshot updates for the status API.
type progressRenderer struct {
	snapshot  *snapshot.Manager
	working   []types.Success
	startedAt time.Time
	lastLog   time.Time
}

func newProgressRenderer(snap *snapshot.Manager, startedAt time.Time) *progressRenderer {
	return &progressRenderer{
		snapshot:  snap,
		startedAt: startedAt,
	}
}

// onUpdate runs on the pool's coordinator goroutine only.
func (r *progressRenderer) onUpdate(u pool.Update) {
	if u.Outcome.Alive {
		r.working = append(r.working, u.Outcome.Success())
	}

	workingPercent := 0.0
	if u.Processed > 0 {
		workingPercent = float64(u.WorkingCount) / float64(u.Processed) * 100.0
	}

	r.snapshot.Update(r.working, types.Summary{
		Total:          u.Total,
		Processed:      u.Processed,
		Working:        u.WorkingCount,
		Failed:         u.FailedCount,
		WorkingPercent: workingPercent,
		Speed:          u.Speed,
		ETA:            u.ETA,
		StartedAt:      r.startedAt,
		UpdatedAt:      time.Now(),
	})

	// Log every second and on the final completion
	if time.Since(r.lastLog) < time.Second && u.Processed != u.Total {
		return
	}
	r.lastLog = time.Now()

	percent := float64(u.Processed) / float64(u.Total) * 100.0
	log.Infof("Progress: %d/%d (%.1f%%), working=%d, failed=%d, speed=%s, eta=%s",
		u.Processed, u.Total, percent, u.WorkingCount, u.FailedCount, u.Speed, u.ETA)
}

// writeJSON writes v to path atomically (temp file + rename).
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

func logRunSummary(results *aggregator.ResultSet, startedAt time.Time) {
	total := len(results.Working) + len(results.NotWorking)
	workingPercent := 0.0
	if total > 0 {
		workingPercent = float64(len(results.Working)) / float64(total) * 100.0
	}

	log.Infof("Run complete: %d working, %d failed (%.2f%% working) in %v",
		len(results.Working), len(results.NotWorking), workingPercent, time.Since(startedAt))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Infof("Memory: Alloc=%dMB, TotalAlloc=%dMB, Sys=%dMB, NumGC=%d, Goroutines=%d",
		m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC, runtime.NumGoroutine())
}
