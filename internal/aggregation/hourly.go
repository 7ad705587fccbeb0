package aggregation

import (
	"time"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

// HourlyBucket holds the average of each metric over one hour. Metrics
// with no samples in the hour are absent from Averages.
type HourlyBucket struct {
	Hour        time.Time          `json:"hour"`
	Averages    map[string]float64 `json:"averages"`
	SampleCount int                `json:"sample_count"`
}

// Hourly groups samples by the hour they fall in and averages each metric,
// oldest hour first. samples must be sorted by time.
func Hourly(samples []protocol.HistorySample, loc *time.Location) []HourlyBucket {
	if loc == nil {
		loc = time.UTC
	}

	var buckets []HourlyBucket
	var sums map[string]float64
	var counts map[string]int

	flush := func() {
		if len(buckets) == 0 {
			return
		}
		b := &buckets[len(buckets)-1]
		for metric, total := range sums {
			b.Averages[metric] = total / float64(counts[metric])
		}
	}

	for _, s := range samples {
		// Truncate to the beginning of the hour
		hour := time.UnixMilli(s.T).In(loc).Truncate(time.Hour)

		if len(buckets) == 0 || !buckets[len(buckets)-1].Hour.Equal(hour) {
			flush()
			buckets = append(buckets, HourlyBucket{Hour: hour, Averages: make(map[string]float64)})
			sums = make(map[string]float64)
			counts = make(map[string]int)
		}

		b := &buckets[len(buckets)-1]
		b.SampleCount++
		for _, metric := range Metrics {
			if v, ok := metricValue(s, metric); ok {
				sums[metric] += v
				counts[metric]++
			}
		}
	}
	flush()

	if buckets == nil {
		buckets = []HourlyBucket{}
	}
	return buckets
}

// NextRunTime returns the first instant after now that lies delay past the
// top of an hour.
func NextRunTime(now time.Time, delay time.Duration) time.Time {
	next := now.Truncate(time.Hour).Add(delay)
	for !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// Bucket returns the bucket starting at hour, if any.
func Bucket(buckets []HourlyBucket, hour time.Time) (HourlyBucket, bool) {
	for _, b := range buckets {
		if b.Hour.Equal(hour) {
			return b, true
		}
	}
	return HourlyBucket{}, false
}
