// Package api provides the optional HTTP server exposing health, metrics and tool information
// of a running chat session.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mcpjungle/mcpchat/internal/service/audit"
	"github.com/mcpjungle/mcpchat/internal/service/registry"
	"github.com/mcpjungle/mcpchat/internal/telemetry"
	"github.com/mcpjungle/mcpchat/pkg/types"
	"github.com/mcpjungle/mcpchat/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	V0PathPrefix    = "/v0"
	V0ApiPathPrefix = "/api" + V0PathPrefix

	readHeaderTimeout = 10 * time.Second
)

type ServerOptions struct {
	// Port is the HTTP port to bind the server to
	Port string

	// Provider and Model describe the running chat session in /metadata
	Provider string
	Model    string

	Registry *registry.Registry

	// AuditService is optional, the invocations endpoint is only registered when it is set
	AuditService *audit.AuditService

	OtelProviders *telemetry.Providers
	Logger        *zap.Logger
}

// Server serves health, metrics and tool information over HTTP
type Server struct {
	port   string
	router *gin.Engine
	http   *http.Server

	provider string
	model    string

	registry      *registry.Registry
	auditService  *audit.AuditService
	otelProviders *telemetry.Providers
	logger        *zap.Logger
}

// NewServer initializes a new Gin server
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.Registry == nil {
		return nil, errors.New("tool registry is required to create the api server")
	}

	s := &Server{
		port:          opts.Port,
		provider:      opts.Provider,
		model:         opts.Model,
		registry:      opts.Registry,
		auditService:  opts.AuditService,
		otelProviders: opts.OtelProviders,
		logger:        opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	s.router = s.setupRouter()
	s.http = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the http handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server (blocking call).
// It returns nil once the server has been shut down.
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("port", s.port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run the server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down the server: %w", err)
	}
	return nil
}

// setupRouter sets up the Gin router with the metrics and API endpoints.
func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// if otel is enabled, setup prometheus metrics endpoint
	if s.otelProviders != nil && s.otelProviders.IsEnabled() {
		// instrument gin
		r.Use(otelgin.Middleware(s.otelProviders.ServiceName()))

		// expose prometheus metrics endpoint
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET(
		"/health",
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		},
	)

	r.GET(
		"/metadata",
		func(c *gin.Context) {
			m := &types.ServerMetadata{
				Version:  version.GetVersion(),
				Provider: s.provider,
				Model:    s.model,
			}
			c.JSON(http.StatusOK, m)
		},
	)

	apiV0 := r.Group(V0ApiPathPrefix)
	{
		apiV0.GET("/tools", s.listToolsHandler())
		apiV0.GET("/tool", s.getToolHandler())

		if s.auditService != nil {
			apiV0.GET("/invocations", s.listInvocationsHandler())
		}
	}

	return r
}
