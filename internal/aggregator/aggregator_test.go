package aggregator

import (
	"testing"

	"github.com/proxy-vitals/internal/types"
	"github.com/stretchr/testify/require"
)

func TestRecordPartitionsOutcomes(t *testing.T) {
	agg := NewAggregator()

	agg.Record(types.Outcome{
		Proxy:          "a:b@1.2.3.4:8080",
		Alive:          true,
		IP:             "1.2.3.4",
		Country:        "Norway",
		City:           "Oslo",
		ResponseTimeMs: 120,
		Endpoint:       "http://check.one/",
	})
	agg.Record(types.Outcome{
		Proxy:  "c:d@5.6.7.8:3128",
		Alive:  false,
		Reason: types.ReasonExhaustedRetries,
		Error:  "no endpoint responded after 3 attempts",
	})
	agg.Record(types.Outcome{
		Proxy:  "e:f@9.9.9.9:1080",
		Alive:  false,
		Reason: types.ReasonTimeout,
	})

	working, notWorking := agg.Counts()
	require.Equal(t, 1, working)
	require.Equal(t, 2, notWorking)

	rs := agg.Finalize()
	require.Len(t, rs.Working, 1)
	require.Len(t, rs.NotWorking, 2)

	require.Equal(t, "1.2.3.4", rs.Working[0].IP)
	require.Equal(t, int64(120), rs.Working[0].ResponseTimeMs)

	// Completion order is preserved, no reordering
	require.Equal(t, types.ReasonExhaustedRetries, rs.NotWorking[0].Reason)
	require.Equal(t, types.ReasonTimeout, rs.NotWorking[1].Reason)
}

func TestDuplicatesAreNotDeduplicated(t *testing.T) {
	agg := NewAggregator()

	outcome := types.Outcome{Proxy: "a:b@1.2.3.4:8080", Alive: true, IP: "1.2.3.4"}
	agg.Record(outcome)
	agg.Record(outcome)

	rs := agg.Finalize()
	require.Len(t, rs.Working, 2)
}

func TestWorkingSetReturnsCopy(t *testing.T) {
	agg := NewAggregator()
	agg.Record(types.Outcome{Proxy: "a:b@1.2.3.4:8080", Alive: true, IP: "1.2.3.4"})

	set := agg.WorkingSet()
	require.Len(t, set, 1)

	set[0].IP = "mutated"
	require.Equal(t, "1.2.3.4", agg.WorkingSet()[0].IP)
}
