// Package http provides the JSON API for digitaltwin.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/digitaltwin/internal/chat"
	"github.com/fyrsmithlabs/digitaltwin/internal/items"
	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
	"github.com/fyrsmithlabs/digitaltwin/internal/users"
	"github.com/fyrsmithlabs/digitaltwin/pkg/auth"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Personal Digital Twin Assistant API"

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Version        string
}

// Deps are the services the API is served from. Health, Metrics and
// Gatherer are optional.
type Deps struct {
	Users  *users.Service
	Items  *items.Service
	Chat   *chat.Service
	Tokens *auth.Issuer

	Health   Pinger
	Metrics  *HTTPMetrics
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	logger *logging.Logger
	config *Config

	users  *users.Service
	items  *items.Service
	chat   *chat.Service
	tokens *auth.Issuer
	health Pinger
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Users == nil || deps.Items == nil || deps.Chat == nil {
		return nil, errors.New("users, items and chat services are required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		logger: logger,
		config: cfg,
		users:  deps.Users,
		items:  deps.Items,
		chat:   deps.Chat,
		tokens: deps.Tokens,
		health: deps.Health,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
	e.Use(s.requestLogger)
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.registerRoutes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s, nil
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.echo.GET("/", s.handleInfo)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metrics))

	api := s.echo.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)

	requireUser := auth.BearerAuthMiddleware(s.tokens, s.users)

	chatGroup := api.Group("/chat", requireUser)
	chatGroup.POST("", s.handleChat)
	chatGroup.GET("/history", s.handleChatHistory)

	itemGroup := api.Group("/items", requireUser)
	itemGroup.GET("", s.handleListItems)
	itemGroup.POST("", s.handleCreateItem)
	itemGroup.GET("/:id", s.handleGetItem)
	itemGroup.PUT("/:id", s.handleUpdateItem)
	itemGroup.DELETE("/:id", s.handleDeleteItem)
	itemGroup.PATCH("/:id/status", s.handleUpdateItemStatus)

	userGroup := api.Group("/users", requireUser)
	userGroup.GET("/me", s.handleGetMe)
	userGroup.PUT("/me", s.handleUpdateMe)
	userGroup.DELETE("/me", s.handleDeleteMe)
}

// requestLogger logs one line per request. Handler errors are rendered here
// so the logged status is the one the client sees.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		}
		if c.Response().Status >= http.StatusInternalServerError {
			s.logger.Warn(c.Request().Context(), "http request", fields...)
		} else {
			s.logger.Info(c.Request().Context(), "http request", fields...)
		}
		return nil
	}
}

func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, InfoResponse{
		Message: ServiceName,
		Version: s.config.Version,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.Ping(c.Request().Context()); err != nil {
			s.logger.Warn(c.Request().Context(), "health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
