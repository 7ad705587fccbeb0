package aggregation

import "github.com/smukkama/sensor-dashboard/internal/protocol"

// Summary describes one metric across a history window. Metrics that are
// absent from every sample have Count 0 and zero values.
type Summary struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
	Latest   float64 `json:"latest"`
	LatestAt int64   `json:"latest_at,omitempty"` // epoch ms
}

// Summarize computes a Summary per metric. samples must be sorted by time.
func Summarize(samples []protocol.HistorySample) map[string]Summary {
	out := make(map[string]Summary, len(Metrics))
	for _, metric := range Metrics {
		var sum Summary
		var total float64
		for _, s := range samples {
			v, ok := metricValue(s, metric)
			if !ok {
				continue
			}
			if sum.Count == 0 || v < sum.Min {
				sum.Min = v
			}
			if sum.Count == 0 || v > sum.Max {
				sum.Max = v
			}
			total += v
			sum.Count++
			sum.Latest = v
			sum.LatestAt = s.T
		}
		if sum.Count > 0 {
			sum.Avg = total / float64(sum.Count)
		}
		out[metric] = sum
	}
	return out
}
