package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HTTPServer manages the public API server.
type HTTPServer struct {
	server       *http.Server
	engine       *gin.Engine
	port         int
	allowOrigins []string
}

// NewHTTPServer creates a new API server instance. Routes are registered
// by the caller via Engine() before Start.
func NewHTTPServer(port int, environment string, allowOrigins []string) *HTTPServer {
	if environment == "prod" || environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return &HTTPServer{
		port:         port,
		allowOrigins: allowOrigins,
	}
}

// Setup builds the gin engine with recovery and CORS middleware.
func (s *HTTPServer) Setup() error {
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.allowOrigins) == 1 && s.allowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.allowOrigins
		corsConfig.AllowCredentials = true
	}
	engine.Use(cors.New(corsConfig))

	s.engine = engine
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: engine,
	}
	return nil
}

// Engine exposes the router for route registration.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving the API on the configured port.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("http server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("http server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the API server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down http server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("http server stopped")
	return nil
}
