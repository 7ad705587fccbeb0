package protocol

// Snapshot is the latest normalized reading across all sensors.
// Numeric fields are always finite; missing values normalize to 0.
type Snapshot struct {
	Touch       bool    `json:"touch"`
	Light       float64 `json:"light"`       // lux
	Distance    float64 `json:"distance"`    // cm
	Smoke       float64 `json:"smoke"`       // ppm
	Temperature float64 `json:"temperature"` // °C
	Timestamp   string  `json:"timestamp,omitempty"`
}

// Baseline is the reading the mock generator starts from. The live adapter
// also uses it as the placeholder until the current path first reports.
var Baseline = Snapshot{
	Touch:       false,
	Light:       500,
	Distance:    40,
	Smoke:       90,
	Temperature: 28.5,
}

// HistorySample is one historical reading. Every metric is optional.
type HistorySample struct {
	T           int64    `json:"t"` // epoch milliseconds
	Temperature *float64 `json:"temperature,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Smoke       *float64 `json:"smoke,omitempty"`
	Touch       *bool    `json:"touch,omitempty"`
}

// SampleOf builds a dense history sample from a snapshot.
func SampleOf(s Snapshot, t int64) HistorySample {
	return HistorySample{
		T:           t,
		Temperature: floatPtr(s.Temperature),
		Light:       floatPtr(s.Light),
		Distance:    floatPtr(s.Distance),
		Smoke:       floatPtr(s.Smoke),
		Touch:       boolPtr(s.Touch),
	}
}

// Source identifies which adapter produced a frame.
type Source string

const (
	SourceLive Source = "live"
	SourceMock Source = "mock"
)

// Frame is one emission of a sensor stream. History is nil until the
// emitting adapter has history to report.
//
// Adapters replace History wholesale and never mutate a published slice,
// so copies of a Frame may share it.
type Frame struct {
	Snapshot
	History []HistorySample `json:"history,omitempty"`
	Source  Source          `json:"source"`
}

// Severity ranks an alert record.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// AlertRecord is one rule-triggered notification derived from a snapshot.
type AlertRecord struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message,omitempty"`
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
