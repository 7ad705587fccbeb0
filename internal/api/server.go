package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/alarming"
	"github.com/smukkama/sensor-dashboard/internal/sensors"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// Server exposes the sensor store over a read-only REST API.
type Server struct {
	cfg     config.HTTPConfig
	store   *sensors.Store
	tracker *alarming.Tracker
	log     *zap.Logger
	engine  *gin.Engine
}

// New constructs a server with routes and middleware. tracker may be nil,
// in which case alert states are not reported.
func New(cfg config.HTTPConfig, store *sensors.Store, tracker *alarming.Tracker, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger.OrNop(log)))
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		log:     logger.OrNop(log),
		engine:  engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/now", s.handleNow)
	v1.GET("/history", s.handleHistory)
	v1.GET("/history/summary", s.handleHistorySummary)
	v1.GET("/history/hourly", s.handleHistoryHourly)
	v1.GET("/alerts", s.handleAlerts)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
