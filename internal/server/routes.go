package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	// AllowedOrigins restricts browser origins. Empty allows every origin.
	AllowedOrigins []string
	MeterProvider  metric.MeterProvider
	Logger         *slog.Logger
	Version        string
}

// RoomsResponse is the body of GET /rooms.
type RoomsResponse struct {
	Capacity int                  `json:"capacity"`
	Rooms    []signaling.RoomInfo `json:"rooms"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// Server is the HTTP surface of the signaling server.
type Server struct {
	registry  *signaling.Registry
	directory *signaling.Directory
	router    *signaling.Router
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	allowed   []string
	version   string
}

func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := opts.MeterProvider
	if provider == nil {
		provider = noop.NewMeterProvider()
	}

	registry := signaling.NewRegistry()
	directory := signaling.NewDirectory(registry)
	metrics, err := signaling.NewMetrics(provider, directory)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	s := &Server{
		registry:  registry,
		directory: directory,
		router:    signaling.NewRouter(registry, directory, logger, metrics),
		logger:    logger,
		allowed:   opts.AllowedOrigins,
		version:   opts.Version,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the gin engine serving /health, /ws and /rooms.
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), s.requestLogger())

	g.GET("/health", s.health)
	g.GET("/ws", s.serveWs)
	g.GET("/rooms", s.rooms)
	return g
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting signaling server", "addr", addr, "version", s.version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down signaling server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     s.version,
		Connections: s.registry.Len(),
		Rooms:       s.directory.Len(),
	})
}

func (s *Server) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, RoomsResponse{
		Capacity: signaling.RoomCapacity,
		Rooms:    s.directory.Rooms(),
	})
}

// serveWs upgrades to a websocket and hands the connection to the router.
func (s *Server) serveWs(c *gin.Context) {
	codec, err := protocol.CodecByName(c.Query("codec"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	id := uuid.NewString()
	conn := signaling.NewConn(id, ws, codec, s.router, s.logger)
	s.router.Connect(id, conn)

	go conn.WritePump()
	go conn.ReadPump()
}

// checkOrigin admits non-browser clients, which send no Origin, and listed browser origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowed) == 0 || slices.Contains(s.allowed, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.allowed, origin)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
