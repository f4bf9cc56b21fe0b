package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rx3lixir/voxbox/internal/outbox"
	"github.com/rx3lixir/voxbox/pkg/jwt"
)

// Presigner generates short-lived playback links for uploaded artifacts
type Presigner interface {
	GetPresignedURL(ctx context.Context, remoteURL string, expiry time.Duration) (string, error)
}

// Server exposes the outbox queue facade to the chat UI over HTTP
type Server struct {
	registry   *outbox.Registry
	artifacts  outbox.ArtifactStore
	presigner  Presigner
	jwtService *jwt.Service
	log        *log.Logger
	httpServer *http.Server
}

func New(
	addr string,
	registry *outbox.Registry,
	artifacts outbox.ArtifactStore,
	presigner Presigner,
	jwtService *jwt.Service,
	logger *log.Logger,
) *Server {
	s := &Server{
		registry:   registry,
		artifacts:  artifacts,
		presigner:  presigner,
		jwtService: jwtService,
		log:        logger,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving requests
func (s *Server) Start() error {
	s.log.Info("HTTP server started", "address", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
