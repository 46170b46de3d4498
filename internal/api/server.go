// Package api exposes the decision engine over HTTP: the execution layer
// POSTs ticks to /api/v1/evaluate, reads the latest summary via GETs, and
// subscribes to the signal stream on /ws.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/engine"
	"kraken-margin-engine/internal/events"
	"kraken-margin-engine/internal/history"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	hist       *history.Repository // optional
	bus        *events.Bus
	hub        *WSHub
	config     ServerConfig
	logger     zerolog.Logger
}

// NewServer creates a new API server and wires the event bus into the
// websocket hub.
func NewServer(config ServerConfig, eng *engine.Engine, hist *history.Repository, bus *events.Bus, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		engine: eng,
		hist:   hist,
		bus:    bus,
		config: config,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.hub = NewWSHub(logger)

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.registerRoutes()

	// Every published event goes to all websocket subscribers.
	bus.SubscribeAll(func(ev events.Event) {
		s.hub.BroadcastEvent(ev)
	})

	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluate", s.handleEvaluate)
		v1.GET("/summary", s.handleSummary)
		v1.GET("/signal", s.handleSignal)
		v1.GET("/position", s.handlePosition)
		v1.GET("/exit", s.handleExit)
		v1.GET("/dca", s.handleDCA)
		v1.GET("/history/:pair", s.handleHistory)
	}
}

// Start runs the hub and the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": s.hub.GetClientCount(),
	})
}

// handleEvaluate runs one tick through the engine and returns the full
// summary.
func (s *Server) handleEvaluate(c *gin.Context) {
	var tick engine.Tick
	if err := c.ShouldBindJSON(&tick); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid tick: %v", err)})
		return
	}
	if tick.Price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be positive"})
		return
	}

	summary := s.engine.Evaluate(tick)
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleSummary(c *gin.Context) {
	summary := s.engine.Latest()
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation yet"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleSignal(c *gin.Context) {
	summary := s.engine.Latest()
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation yet"})
		return
	}
	c.JSON(http.StatusOK, summary.Reversal)
}

func (s *Server) handlePosition(c *gin.Context) {
	summary := s.engine.Latest()
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation yet"})
		return
	}
	c.JSON(http.StatusOK, summary.Position)
}

func (s *Server) handleExit(c *gin.Context) {
	summary := s.engine.Latest()
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation yet"})
		return
	}
	c.JSON(http.StatusOK, summary.Exit)
}

func (s *Server) handleDCA(c *gin.Context) {
	summary := s.engine.Latest()
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no evaluation yet"})
		return
	}
	c.JSON(http.StatusOK, summary.DCA)
}

// handleHistory returns recent persisted summaries for a pair.
func (s *Server) handleHistory(c *gin.Context) {
	if s.hist == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal history not configured"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := s.hist.Recent(c.Request.Context(), c.Param("pair"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
