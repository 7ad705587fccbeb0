package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

func TestSummarize(t *testing.T) {
	samples := []protocol.HistorySample{
		{T: 1, Light: f(300), Smoke: f(100), Touch: b(false)},
		{T: 2, Light: f(500), Touch: b(true)},
		{T: 3, Light: f(400), Smoke: f(200)},
	}

	got := Summarize(samples)

	require.Equal(t, Summary{Count: 3, Min: 300, Max: 500, Avg: 400, Latest: 400, LatestAt: 3}, got["light"])
	require.Equal(t, Summary{Count: 2, Min: 100, Max: 200, Avg: 150, Latest: 200, LatestAt: 3}, got["smoke"])
	require.Equal(t, Summary{Count: 2, Min: 0, Max: 1, Avg: 0.5, Latest: 1, LatestAt: 2}, got["touch"])
	require.Equal(t, Summary{}, got["temperature"])
	require.Len(t, got, len(Metrics))
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)
	for _, m := range Metrics {
		require.Zero(t, got[m].Count)
	}
}

func TestHourly(t *testing.T) {
	base := time.Date(2025, 12, 24, 17, 0, 0, 0, time.UTC)
	samples := []protocol.HistorySample{
		{T: base.Add(10 * time.Minute).UnixMilli(), Temperature: f(28)},
		{T: base.Add(50 * time.Minute).UnixMilli(), Temperature: f(30), Smoke: f(90)},
		{T: base.Add(65 * time.Minute).UnixMilli(), Smoke: f(120)},
	}

	buckets := Hourly(samples, time.UTC)
	require.Len(t, buckets, 2)

	require.True(t, buckets[0].Hour.Equal(base))
	require.Equal(t, 2, buckets[0].SampleCount)
	require.Equal(t, map[string]float64{"temperature": 29, "smoke": 90}, buckets[0].Averages)

	require.True(t, buckets[1].Hour.Equal(base.Add(time.Hour)))
	require.Equal(t, map[string]float64{"smoke": 120}, buckets[1].Averages)
}

func TestHourly_Empty(t *testing.T) {
	buckets := Hourly(nil, nil)
	require.NotNil(t, buckets)
	require.Empty(t, buckets)
}

func TestNextRunTime(t *testing.T) {
	delay := 5 * time.Minute
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC), time.Date(2025, 12, 24, 18, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 24, 18, 5, 0, 0, time.UTC), time.Date(2025, 12, 24, 19, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 24, 18, 42, 0, 0, time.UTC), time.Date(2025, 12, 24, 19, 5, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NextRunTime(tc.now, delay), tc.now)
	}
}

func TestBucket(t *testing.T) {
	h := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	buckets := []HourlyBucket{{Hour: h, SampleCount: 3}}

	got, ok := Bucket(buckets, h)
	require.True(t, ok)
	require.Equal(t, 3, got.SampleCount)

	_, ok = Bucket(buckets, h.Add(time.Hour))
	require.False(t, ok)
}
