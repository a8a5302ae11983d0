package pool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/proxy-vitals/internal/aggregator"
	"github.com/proxy-vitals/internal/proxyspec"
	"github.com/proxy-vitals/internal/types"
	"github.com/stretchr/testify/require"
)

func makeSpecs(t *testing.T, n int) []proxyspec.Spec {
	t.Helper()

	specs := make([]proxyspec.Spec, 0, n)
	for i := 0; i < n; i++ {
		spec, err := proxyspec.Parse(fmt.Sprintf("user:pass@10.0.0.%d:%d", i%250+1, 8000+i))
		require.NoError(t, err)
		specs = append(specs, spec)
	}
	return specs
}

// evenPortsWork succeeds for even ports and fails the rest.
func evenPortsWork(ctx context.Context, spec proxyspec.Spec) types.Outcome {
	if spec.Port%2 == 0 {
		return types.Outcome{
			Proxy:          spec.Raw,
			Alive:          true,
			IP:             spec.Host,
			Country:        "Unknown",
			City:           "Unknown",
			ResponseTimeMs: 12,
			Endpoint:       "http://check.one/",
		}
	}
	return types.Outcome{
		Proxy:  spec.Raw,
		Alive:  false,
		Reason: types.ReasonExhaustedRetries,
		Error:  "no endpoint responded after 3 attempts",
	}
}

func outcomeKeys(rs *aggregator.ResultSet) []string {
	keys := make([]string, 0, len(rs.Working)+len(rs.NotWorking))
	for _, s := range rs.Working {
		keys = append(keys, "ok|"+s.Proxy)
	}
	for _, f := range rs.NotWorking {
		keys = append(keys, string(f.Reason)+"|"+f.Proxy)
	}
	sort.Strings(keys)
	return keys
}

func TestRunProducesOneOutcomePerSpec(t *testing.T) {
	specs := makeSpecs(t, 100)

	p := NewPool(evenPortsWork, nil, 100, nil)
	results := p.Run(context.Background(), specs, 8)

	require.Equal(t, len(specs), len(results.Working)+len(results.NotWorking))
	require.Len(t, results.Working, 50)
	require.Len(t, results.NotWorking, 50)

	// Every input spec appears exactly once across both sets
	seen := make(map[string]int)
	for _, s := range results.Working {
		seen[s.Proxy]++
	}
	for _, f := range results.NotWorking {
		seen[f.Proxy]++
	}
	for _, spec := range specs {
		require.Equal(t, 1, seen[spec.Raw], "spec %s", spec.Raw)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	specs := makeSpecs(t, 60)
	p := NewPool(evenPortsWork, nil, 100, nil)

	first := p.Run(context.Background(), specs, 4)
	second := p.Run(context.Background(), specs, 4)

	// Order may differ across runs; the multisets must not
	require.Equal(t, outcomeKeys(first), outcomeKeys(second))
}

func TestRunPoolSizeOne(t *testing.T) {
	specs := makeSpecs(t, 10)
	var concurrent, peak atomic.Int64

	probeFn := func(ctx context.Context, spec proxyspec.Spec) types.Outcome {
		cur := concurrent.Add(1)
		if cur > peak.Load() {
			peak.Store(cur)
		}
		time.Sleep(time.Millisecond)
		concurrent.Add(-1)
		return evenPortsWork(ctx, spec)
	}

	p := NewPool(probeFn, nil, 100, nil)
	results := p.Run(context.Background(), specs, 1)

	require.Equal(t, len(specs), len(results.Working)+len(results.NotWorking))
	require.Equal(t, int64(1), peak.Load())
}

func TestWorkerPanicBecomesFailureOutcome(t *testing.T) {
	specs := makeSpecs(t, 20)

	probeFn := func(ctx context.Context, spec proxyspec.Spec) types.Outcome {
		if spec.Port == 8007 {
			panic("boom")
		}
		return evenPortsWork(ctx, spec)
	}

	p := NewPool(probeFn, nil, 100, nil)
	results := p.Run(context.Background(), specs, 4)

	// The panic is contained: all 20 outcomes still arrive
	require.Equal(t, 20, len(results.Working)+len(results.NotWorking))

	var fault *types.Failure
	for i := range results.NotWorking {
		if results.NotWorking[i].Reason == types.ReasonWorkerFault {
			fault = &results.NotWorking[i]
		}
	}
	require.NotNil(t, fault)
	require.Contains(t, fault.Error, "boom")
}

func TestProgressUpdates(t *testing.T) {
	specs := makeSpecs(t, 30)

	var updates []Update
	onProgress := func(u Update) {
		updates = append(updates, u)
	}

	p := NewPool(evenPortsWork, nil, 10, onProgress)
	p.Run(context.Background(), specs, 4)

	require.Len(t, updates, 30, "one update per completed probe")

	for i, u := range updates {
		require.Equal(t, i+1, u.Processed)
		require.Equal(t, 30, u.Total)
		require.Equal(t, u.Processed, u.WorkingCount+u.FailedCount)
		require.NotEmpty(t, u.ETA)
		require.NotEmpty(t, u.Speed)
	}

	final := updates[len(updates)-1]
	require.Equal(t, 30, final.Processed)
	require.Equal(t, 15, final.WorkingCount)
	require.Equal(t, 15, final.FailedCount)
}

func TestCancellationStopsDispatch(t *testing.T) {
	specs := makeSpecs(t, 200)
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int64
	probeFn := func(ctx context.Context, spec proxyspec.Spec) types.Outcome {
		if started.Add(1) == 5 {
			cancel()
		}
		time.Sleep(5 * time.Millisecond)
		return evenPortsWork(ctx, spec)
	}

	p := NewPool(probeFn, nil, 100, nil)
	results := p.Run(ctx, specs, 2)

	processed := len(results.Working) + len(results.NotWorking)
	require.Greater(t, processed, 0, "in-flight probes complete")
	require.Less(t, processed, len(specs), "dispatch stops promptly after cancel")
}

func TestScenarioMixedInput(t *testing.T) {
	input := strings.Join([]string{
		"a:b@1.2.3.4:8080",
		"bad-line",
		"c:d@5.6.7.8:3128",
	}, "\n")

	specs, malformed, err := proxyspec.ParseAll(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Len(t, malformed, 1)

	probeFn := func(ctx context.Context, spec proxyspec.Spec) types.Outcome {
		if spec.Host == "1.2.3.4" {
			return types.Outcome{
				Proxy:          spec.Raw,
				Alive:          true,
				IP:             "1.2.3.4",
				Country:        "Unknown",
				City:           "Unknown",
				ResponseTimeMs: 42,
				Endpoint:       "http://check.one/",
			}
		}
		return types.Outcome{
			Proxy:  spec.Raw,
			Alive:  false,
			Reason: types.ReasonExhaustedRetries,
			Error:  "connection_error: connect refused",
		}
	}

	p := NewPool(probeFn, nil, 100, nil)
	results := p.Run(context.Background(), specs, 1)

	// Caller folds malformed lines in, as the CLI does
	for _, line := range malformed {
		results.NotWorking = append(results.NotWorking, types.Failure{
			Proxy:  line,
			Reason: types.ReasonInvalidFormat,
		})
	}

	require.Len(t, results.Working, 1)
	require.Equal(t, "1.2.3.4", results.Working[0].IP)

	require.Len(t, results.NotWorking, 2)
	reasons := map[types.FailReason]bool{}
	for _, f := range results.NotWorking {
		reasons[f.Reason] = true
	}
	require.True(t, reasons[types.ReasonExhaustedRetries])
	require.True(t, reasons[types.ReasonInvalidFormat])
}

func TestDefaultSize(t *testing.T) {
	require.GreaterOrEqual(t, DefaultSize(), 1)
}
