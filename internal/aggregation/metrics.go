package aggregation

import "github.com/smukkama/sensor-dashboard/internal/protocol"

// Metrics lists the history metrics in display order.
var Metrics = []string{"temperature", "light", "distance", "smoke", "touch"}

// metricValue returns the value of a metric in a sample, if present.
// touch reports 1 when triggered and 0 otherwise.
func metricValue(s protocol.HistorySample, metric string) (float64, bool) {
	var v *float64
	switch metric {
	case "temperature":
		v = s.Temperature
	case "light":
		v = s.Light
	case "distance":
		v = s.Distance
	case "smoke":
		v = s.Smoke
	case "touch":
		if s.Touch == nil {
			return 0, false
		}
		if *s.Touch {
			return 1, true
		}
		return 0, true
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
