package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vidscribe/internal/config"
	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
	"vidscribe/internal/models"
	"vidscribe/internal/retrieval"
	"vidscribe/internal/services"
)

const requestIDHeader = "X-Request-ID"

// Options carries the services the server exposes. Jobs, Engine, and Models
// are required.
type Options struct {
	Config  *config.Config
	Jobs    *jobs.Orchestrator
	Engine  *retrieval.Engine
	Models  *models.Manager
	Logger  *slog.Logger
	Version string
}

// Server is the HTTP and WebSocket boundary.
type Server struct {
	cfg      *config.Config
	jobs     *jobs.Orchestrator
	engine   *retrieval.Engine
	models   *models.Manager
	logger   *slog.Logger
	version  string
	router   *gin.Engine
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	downloadsMu sync.Mutex
	downloads   map[string]bool

	listener net.Listener
	server   *http.Server
}

// New builds the router. Call Start to listen, or use Handler directly.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Jobs == nil || opts.Engine == nil || opts.Models == nil {
		return nil, errors.New("api: config, jobs, engine, and models are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       opts.Config,
		jobs:      opts.Jobs,
		engine:    opts.Engine,
		models:    opts.Models,
		logger:    logging.NewComponentLogger(opts.Logger, "api-server"),
		version:   opts.Version,
		ctx:       ctx,
		cancel:    cancel,
		downloads: make(map[string]bool),
	}
	if s.version == "" {
		s.version = "dev"
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.Server.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = isLoopbackOrigin
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/batch", s.handleActiveBatch)
		api.POST("/batch", s.handleStartBatch)
		api.POST("/batch/cancel", s.handleCancelBatch)

		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)

		api.GET("/models", s.handleListModels)
		api.GET("/models/:model", s.handleVerifyModel)
		api.POST("/models/:model/download", s.handleDownloadModel)

		api.POST("/search", s.handleSearch)

		api.GET("/events", s.handleEvents)
	}
	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured bind address until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Server.Bind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and every event stream.
func (s *Server) Stop() {
	s.cancel()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))

		started := time.Now()
		c.Next()

		logger := logging.WithContext(c.Request.Context(), s.logger)
		logger.Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(started)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	_, active := s.jobs.Current()
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "vidscribe",
		Version:   s.version,
		JobActive: active,
		Synthesis: s.engine.Synthesis().Available(),
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger := logging.WithContext(c.Request.Context(), s.logger)
		logger.Error("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Error: err.Error(), Code: codeFor(err)})
}

func codeFor(err error) string {
	if errors.Is(err, errDownloadRunning) {
		return "download_running"
	}
	return jobs.Code(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrJobRunning), errors.Is(err, errDownloadRunning):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSynthesisUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrExternalTool), errors.Is(err, services.ErrLaunch), errors.Is(err, services.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string, err error) error {
	return services.Wrap(services.ErrValidation, "api", "decode", message, err)
}
