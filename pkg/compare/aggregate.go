package compare

import (
	"math"
	"sort"

	"github.com/zen-systems/modelcompare/pkg/adapter"
)

// Aggregate derives comparison metrics from successful responses. An empty
// input yields zero Metrics.
//
// TotalLatencyMs is the slowest latency, since all calls run concurrently.
// FastestModel takes the strictly lowest latency and MostCostEffectiveModel
// the lowest cost per token; on ties the first response wins. Responses
// reporting no tokens rank last for cost effectiveness.
func Aggregate(responses []adapter.Response) Metrics {
	var m Metrics
	if len(responses) == 0 {
		return m
	}

	costs := make([]float64, 0, len(responses))
	fastest, cheapest := 0, 0
	bestRatio := costRatio(responses[0].Metrics)

	for i, r := range responses {
		if r.Metrics.LatencyMs > m.TotalLatencyMs {
			m.TotalLatencyMs = r.Metrics.LatencyMs
		}
		costs = append(costs, r.Metrics.Cost)

		if r.Metrics.LatencyMs < responses[fastest].Metrics.LatencyMs {
			fastest = i
		}
		if ratio := costRatio(r.Metrics); ratio < bestRatio {
			cheapest, bestRatio = i, ratio
		}
	}

	// Summed in ascending order so the total does not depend on input order.
	sort.Float64s(costs)
	for _, c := range costs {
		m.TotalCost += c
	}

	m.FastestModel = responses[fastest].Model
	m.MostCostEffectiveModel = responses[cheapest].Model
	return m
}

func costRatio(m adapter.Metrics) float64 {
	if m.TotalTokens <= 0 || math.IsNaN(m.Cost) {
		return math.Inf(1)
	}
	return m.Cost / float64(m.TotalTokens)
}
