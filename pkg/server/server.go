// Package server exposes the synchronizer, the catalog and the credential
// store over HTTP.
//
//go:generate mockgen -destination=./mocks/server.go . PackageService,Catalog,UserStore
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/synchronizer"
)

// PackageService mutates the store.
type PackageService interface {
	Upload(ctx context.Context, artifactPath, filename string) (*synchronizer.UploadResult, error)
	Delete(ctx context.Context, packageName string) (*synchronizer.DeleteResult, error)
	Reindex(ctx context.Context) error
}

// Catalog answers read-only listing requests.
type Catalog interface {
	List(ctx context.Context) ([]string, error)
	Search(ctx context.Context, s string) ([]string, error)
}

// UserStore manages API users. A nil UserStore disables the user
// management routes; login keeps working through the Authenticator.
type UserStore interface {
	Add(username, password string, role auth.Role) error
	SetPassword(username, password string) error
	SetRole(username string, role auth.Role) error
	Remove(username string) error
	List() ([]auth.User, error)
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Packages PackageService
	Catalog  Catalog
	Auth     auth.Authenticator
	Users    UserStore
}

// Server serves the wheelhouse API.
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	httpServer *http.Server
}

const readHeaderTimeout = 10 * time.Second

// New creates a server listening on cfg.Listen.
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("Starting API server", logger.Fields{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down API server")
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(sctx); err != nil {
		return err
	}
	return <-errCh
}
