// Package httpserver exposes the relay over HTTP: dispatching
// notifications, inspecting their audit records, and the file upload
// surface.
package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sendrelay/sendrelay/internal/audit"
	"github.com/sendrelay/sendrelay/internal/notification"
	"github.com/sendrelay/sendrelay/internal/telemetry"
	"github.com/sendrelay/sendrelay/internal/upload"
)

// Dispatcher is the dispatch capability the server needs; satisfied by
// *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, tag string, msg notification.Message) (*audit.Record, error)
	Enqueue(ctx context.Context, tag string, msg notification.Message, priority int) (*audit.Record, error)
	Get(ctx context.Context, id uuid.UUID) (*audit.Record, error)
	QueueEnabled() bool
}

// Config holds HTTP server settings.
type Config struct {
	// ServiceName is used for tracing spans.
	ServiceName string

	// DefaultChannel is the selector applied when a request names no
	// channel. Read once at startup.
	DefaultChannel string

	// Environment toggles gin's mode.
	Environment string
}

// Server wires the gin engine with its handlers.
type Server struct {
	engine     *gin.Engine
	dispatcher Dispatcher
	uploads    *upload.Store
	log        *telemetry.Logger
	config     Config
}

// New builds the router.
func New(config Config, dispatcher Dispatcher, uploads *upload.Store, log *telemetry.Logger) *Server {
	if config.ServiceName == "" {
		config.ServiceName = "sendrelay"
	}
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:     gin.New(),
		dispatcher: dispatcher,
		uploads:    uploads,
		log:        log,
		config:     config,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware(config.ServiceName))
	s.engine.Use(s.requestLogger())

	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.POST("/notifications", s.handleSendNotification)
		api.GET("/notifications/:id", s.handleGetNotification)
		api.POST("/uploads", s.handleUpload)
		api.GET("/uploads/:filename", s.handleDownload)
	}

	return s
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// requestLogger attaches a correlation ID and logs each request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := telemetry.WithCorrelationID(c.Request.Context(), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		s.log.WithContext(ctx).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
