package control

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"

	"github.com/gin-gonic/gin"
)

type ServerOptions struct {
	Port int
}

// Server is the HTTP endpoint handlers are registered on.
type Server struct {
	options  ServerOptions
	router   *gin.Engine
	server   *http.Server
	listener net.Listener
	logger   logging.Logger
	mutex    sync.Mutex
}

func NewServer(options ServerOptions, logger logging.Logger) (*Server, error) {
	if options.Port < 0 || options.Port > 65535 {
		return nil, errors.NewValidationError("invalid server port", nil).WithContext("port", options.Port)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	return &Server{
		options: options,
		router:  router,
		logger:  logger,
	}, nil
}

// Router is where handlers are registered before Start.
func (s *Server) Router() gin.IRouter {
	return s.router
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in the background. Port 0 binds any free
// port; Addr reports which.
func (s *Server) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.server != nil {
		return errors.NewConflictError("server already started", nil)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.options.Port))
	if err != nil {
		return errors.NewIOError("failed to listen", err).WithContext("port", s.options.Port)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("HTTP server listening, address: %s", listener.Addr())

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server failed, error: %v", err)
		}
	}(s.server)

	return nil
}

func (s *Server) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires, then closes remaining connections.
func (s *Server) Shutdown(ctx context.Context) {
	s.mutex.Lock()
	server := s.server
	s.mutex.Unlock()

	if server == nil {
		return
	}

	s.logger.Infof("Shutting down HTTP server...")
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warnf("Graceful shutdown incomplete, forcing close, error: %v", err)
		server.Close()
	}
	s.logger.Infof("HTTP server stopped")
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("Request handled, method: %s, path: %s, status: %d, duration: %v",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
