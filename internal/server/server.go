package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/logger"
)

// SettingsStore is the mutable bot configuration the dashboard edits.
type SettingsStore interface {
	Load(ctx context.Context) (model.BotSettings, error)
	Save(ctx context.Context, settings model.BotSettings) error
	SetActive(ctx context.Context, active bool) error
}

// TradeStore reads the append-only trade log.
type TradeStore interface {
	Recent(ctx context.Context, limit int) ([]model.TradeRecord, error)
	Since(ctx context.Context, after time.Time, limit int) ([]model.TradeRecord, error)
	Stats(ctx context.Context) (model.TradeStats, error)
}

// StatusSource reports the watcher's connection state.
type StatusSource interface {
	State() string
}

// Server is the dashboard API: trade history, stats, settings and a live
// websocket feed. It never touches the mirror pipeline directly; all
// coupling goes through the shared stores.
type Server struct {
	cfg      config.ServerConfig
	settings SettingsStore
	trades   TradeStore
	status   StatusSource
	hub      *hub
	upgrader websocket.Upgrader
}

func New(cfg config.ServerConfig, settings SettingsStore, trades TradeStore, status StatusSource) *Server {
	return &Server{
		cfg:      cfg,
		settings: settings,
		trades:   trades,
		status:   status,
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router(metricsCfg config.MetricsConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	if metricsCfg.Enabled {
		router.GET(metricsCfg.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/trades", s.handleTrades)
		api.GET("/stats", s.handleStats)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)
		api.POST("/bot/start", s.handleSetActive(true))
		api.POST("/bot/stop", s.handleSetActive(false))
	}

	router.GET("/ws", s.handleWS)
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	state := ""
	if s.status != nil {
		state = s.status.State()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "watcher": state})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	trades, err := s.trades.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.trades.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var settings model.BotSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if settings.CopyRatio <= 0 || settings.CopyRatio > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "copy_ratio must be in (0, 1]"})
		return
	}
	if settings.MaxNotional <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_notional must be positive"})
		return
	}
	if !common.IsHexAddress(settings.TargetAccount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_account is not a valid address"})
		return
	}

	if err := s.settings.Save(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.settings.SetActive(c.Request.Context(), active); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle bot"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"is_active": active})
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(16)
	defer s.hub.Unsubscribe(sub)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case rec, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		}
	}
}

// WatchTrades polls the trade log and broadcasts new records to the
// websocket subscribers. Runs until the context is cancelled.
func (s *Server) WatchTrades(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSeen := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := s.trades.Since(ctx, lastSeen, 100)
		if err != nil {
			logger.Warn("trade feed poll failed", "error", err)
			continue
		}
		// Since returns newest first; broadcast oldest first.
		for i := len(records) - 1; i >= 0; i-- {
			s.hub.Broadcast(records[i])
			if records[i].CreatedAt.After(lastSeen) {
				lastSeen = records[i].CreatedAt
			}
		}
	}
}

// Run serves the API with graceful shutdown on context cancel.
func (s *Server) Run(ctx context.Context, metricsCfg config.MetricsConfig) error {
	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Router(metricsCfg),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
