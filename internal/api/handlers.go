package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smukkama/sensor-dashboard/internal/aggregation"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
)

// GET /healthz
func (s *Server) handleHealth(c *gin.Context) {
	view := s.store.View()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"ready":     view.Ready,
		"synthetic": view.Synthetic,
	})
}

// handleNow returns the latest snapshot with its derived states
// GET /api/v1/now
func (s *Server) handleNow(c *gin.Context) {
	view := s.store.View()
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"snapshot":           view.Snapshot,
			"ambient_dark":       view.Derived.AmbientDark,
			"near_object_active": view.Derived.NearObjectActive,
		},
		"meta": gin.H{
			"ready":      view.Ready,
			"synthetic":  view.Synthetic,
			"source":     view.Source,
			"updates":    view.Updates,
			"updated_at": view.UpdatedAt,
		},
	})
}

// handleHistory returns the most recent history samples, oldest first
// GET /api/v1/history?last_n=100
func (s *Server) handleHistory(c *gin.Context) {
	limit, ok := s.parseLastN(c)
	if !ok {
		return
	}

	samples := s.store.View().History
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"data": samples,
		"meta": gin.H{
			"count": len(samples),
			"limit": limit,
		},
	})
}

// handleHistorySummary returns min/max/avg/latest per metric
// GET /api/v1/history/summary
func (s *Server) handleHistorySummary(c *gin.Context) {
	samples := s.store.View().History
	c.JSON(http.StatusOK, gin.H{
		"data": aggregation.Summarize(samples),
		"meta": gin.H{
			"samples": len(samples),
			"metrics": aggregation.Metrics,
		},
	})
}

// handleHistoryHourly returns hourly averages per metric
// GET /api/v1/history/hourly?tz=Asia/Bangkok
func (s *Server) handleHistoryHourly(c *gin.Context) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tz"})
			return
		}
		loc = parsed
	}

	buckets := aggregation.Hourly(s.store.View().History, loc)
	c.JSON(http.StatusOK, gin.H{
		"data": buckets,
		"meta": gin.H{"count": len(buckets)},
	})
}

type alertItem struct {
	protocol.AlertRecord
	ActiveSince *time.Time `json:"active_since,omitempty"`
}

// handleAlerts returns the alerts for the latest snapshot in rule order
// GET /api/v1/alerts
func (s *Server) handleAlerts(c *gin.Context) {
	alerts := s.store.View().Alerts

	items := make([]alertItem, 0, len(alerts))
	for _, a := range alerts {
		item := alertItem{AlertRecord: a}
		if s.tracker != nil {
			if state := s.tracker.GetState(a.ID); !state.ActiveSince.IsZero() {
				since := state.ActiveSince
				item.ActiveSince = &since
			}
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": items,
		"meta": gin.H{"count": len(items)},
	})
}

func (s *Server) parseLastN(c *gin.Context) (int, bool) {
	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("last_n"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return 0, false
		}
		limit = parsed
	}
	if limit <= 0 {
		limit = protocol.LiveHistoryLimit
	}
	return limit, true
}
