package alarming

import (
	"fmt"
	"strconv"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

// Thresholds shared by the alert rules and the derived ambient states.
const (
	LightDarkBelow      = 400.0
	DistanceNearBelow   = 25.0
	SmokeDangerAbove    = 150.0
	TemperatureHotAbove = 35.0
)

// Rule describes one alert: the metric it watches, the breach condition and
// the record produced while the condition holds.
type Rule struct {
	ID        string
	Metric    string
	Operator  string
	Threshold float64
	Severity  protocol.Severity
	Title     string
	Message   func(value float64) string
}

// Rules lists the alert rules in evaluation order. Output order follows it.
var Rules = []Rule{
	{
		ID:        "touch",
		Metric:    "touch",
		Operator:  "==",
		Threshold: 1,
		Severity:  protocol.SeverityWarning,
		Title:     "Door Opened (Touch Detected)",
		Message:   func(float64) string { return "Door sensor triggered." },
	},
	{
		ID:        "light",
		Metric:    "light",
		Operator:  "<",
		Threshold: LightDarkBelow,
		Severity:  protocol.SeverityInfo,
		Title:     "Garden & Dome Lights ON",
	},
	{
		ID:        "ultrasonic",
		Metric:    "distance",
		Operator:  "<",
		Threshold: DistanceNearBelow,
		Severity:  protocol.SeverityInfo,
		Title:     "Christmas Tree Lights ON",
	},
	{
		ID:        "smoke",
		Metric:    "smoke",
		Operator:  ">",
		Threshold: SmokeDangerAbove,
		Severity:  protocol.SeverityDanger,
		Title:     "High Smoke Detected",
		Message: func(v float64) string {
			return fmt.Sprintf("Smoke level %s ppm exceeds safe threshold of %s ppm.",
				strconv.FormatFloat(v, 'f', -1, 64),
				strconv.FormatFloat(SmokeDangerAbove, 'f', -1, 64))
		},
	},
	{
		ID:        "temp",
		Metric:    "temperature",
		Operator:  ">",
		Threshold: TemperatureHotAbove,
		Severity:  protocol.SeverityWarning,
		Title:     "High Temperature",
		Message: func(v float64) string {
			return fmt.Sprintf("%.1f°C > %s°C", v,
				strconv.FormatFloat(TemperatureHotAbove, 'f', -1, 64))
		},
	},
}

// Evaluate returns the alert records whose rule holds for s, in rule order.
// It never returns nil.
func Evaluate(s protocol.Snapshot) []protocol.AlertRecord {
	alerts := make([]protocol.AlertRecord, 0, len(Rules))
	for _, rule := range Rules {
		value, ok := extractMetricValue(s, rule.Metric)
		if !ok || !evaluateCondition(value, rule.Operator, rule.Threshold) {
			continue
		}

		record := protocol.AlertRecord{
			ID:       rule.ID,
			Severity: rule.Severity,
			Title:    rule.Title,
		}
		if rule.Message != nil {
			record.Message = rule.Message(value)
		}
		alerts = append(alerts, record)
	}
	return alerts
}

// Derived holds the ambient states computed from a snapshot.
type Derived struct {
	AmbientDark      bool `json:"ambient_dark"`
	NearObjectActive bool `json:"near_object_active"`
}

// Derive computes the ambient states for s.
func Derive(s protocol.Snapshot) Derived {
	return Derived{
		AmbientDark:      evaluateCondition(s.Light, "<", LightDarkBelow),
		NearObjectActive: evaluateCondition(s.Distance, "<", DistanceNearBelow),
	}
}

func extractMetricValue(s protocol.Snapshot, metricName string) (float64, bool) {
	switch metricName {
	case "touch":
		if s.Touch {
			return 1, true
		}
		return 0, true
	case "light":
		return s.Light, true
	case "distance":
		return s.Distance, true
	case "smoke":
		return s.Smoke, true
	case "temperature":
		return s.Temperature, true
	default:
		return 0, false
	}
}

func evaluateCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}
