package protocol

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/smukkama/sensor-dashboard/internal/history"
)

const (
	// LiveHistoryLimit caps history delivered by the remote store.
	LiveHistoryLimit = 300
	// LocalHistoryLimit caps history synthesized one sample per tick.
	LocalHistoryLimit = 150

	// Largest magnitude an epoch-millisecond timestamp may have.
	maxEpochMillis = 8.64e15
)

// NormalizeCurrent converts a raw current-path record into a dense Snapshot.
// It returns false when raw is not a record, in which case the update
// should be ignored.
func NormalizeCurrent(raw any) (Snapshot, bool) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Touch:       truthy(rec["touch"]),
		Light:       toNumber(rec["light"]),
		Distance:    distanceOf(rec),
		Smoke:       toNumber(rec["smoke"]),
		Temperature: toNumber(rec["temperature"]),
		Timestamp:   passthrough(rec["timestamp"]),
	}
	return snap, true
}

// NormalizeHistory converts a raw history collection into samples sorted by
// time, keeping the most recent LiveHistoryLimit. The collection is either an
// object keyed by push ids or an array. Records without a time field are
// stamped with now; records whose time cannot be resolved are dropped.
// It returns false when raw is not a collection.
func NormalizeHistory(raw any, now time.Time) ([]HistorySample, bool) {
	var records []any
	switch c := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		records = make([]any, 0, len(keys))
		for _, k := range keys {
			records = append(records, c[k])
		}
	case []any:
		records = c
	default:
		return nil, false
	}

	samples := make([]HistorySample, 0, len(records))
	for _, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		t, ok := resolveTime(rec, now)
		if !ok {
			continue
		}
		samples = append(samples, sampleFromRecord(rec, t))
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].T < samples[j].T
	})
	return history.Last(samples, LiveHistoryLimit), true
}

func sampleFromRecord(rec map[string]any, t int64) HistorySample {
	s := HistorySample{T: t}
	if v, ok := number(rec["temperature"]); ok {
		s.Temperature = floatPtr(v)
	}
	if v, ok := number(rec["light"]); ok {
		s.Light = floatPtr(v)
	}
	if v, ok := number(rec["distance"]); ok {
		s.Distance = floatPtr(v)
	} else if v, ok := number(rec["ultrasonic"]); ok {
		s.Distance = floatPtr(v)
	}
	if v, ok := number(rec["smoke"]); ok {
		s.Smoke = floatPtr(v)
	}
	if v, present := rec["touch"]; present && v != nil {
		s.Touch = boolPtr(truthy(v))
	}
	return s
}

// resolveTime picks the first of timestamp, time, t that is set. Only a
// numeric time that is not finite or out of range is unresolvable.
func resolveTime(rec map[string]any, now time.Time) (int64, bool) {
	var raw any
	for _, key := range []string{"timestamp", "time", "t"} {
		if v, ok := rec[key]; ok && v != nil {
			raw = v
			break
		}
	}

	switch v := raw.(type) {
	case nil:
		return now.UnixMilli(), true
	case string:
		if parsed, err := dateparse.ParseAny(strings.TrimSpace(v)); err == nil {
			return parsed.UnixMilli(), true
		}
		return now.UnixMilli(), true
	case float64, float32, int, int64, json.Number:
		f, ok := number(v)
		if !ok || math.Abs(f) > maxEpochMillis {
			return 0, false
		}
		return int64(f), true
	default:
		// Neither a number nor a date string
		return now.UnixMilli(), true
	}
}

func distanceOf(rec map[string]any) float64 {
	if v, ok := number(rec["distance"]); ok {
		return v
	}
	if v, ok := number(rec["ultrasonic"]); ok {
		return v
	}
	return 0
}

// number accepts only values that are already numeric and finite.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toNumber coerces loosely typed values, falling back to 0.
func toNumber(v any) float64 {
	if f, ok := number(v); ok {
		return f
	}
	switch n := v.(type) {
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	// NaN and other non-finite numbers are falsy; objects and arrays are not.
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n)
	case float32:
		return !math.IsNaN(float64(n))
	}
	return true
}

func passthrough(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
