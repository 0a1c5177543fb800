// Package producerapi implements the producer's HTTP surface: token
// issuance, packaged-torrent listing, synchronous packaging, and
// Range-aware chunk download/delete. It follows the same gorilla/mux
// server shape and JSON response helpers used on the consumer side of
// this codebase's sibling daemon, scoped down to the handful of routes
// this domain actually needs.
package producerapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/arlowood/torrentship/internal/db"
	"github.com/arlowood/torrentship/internal/packaging"
)

// Server is the producer's HTTP API: token auth guarding a packaging
// engine and the producer's own view of Torrent rows at the "Added"
// sentinel stage (discovered by the directory monitor, not yet
// packaged).
type Server struct {
	router *mux.Router
	server *http.Server

	port     int
	username string
	password string

	database *db.DB
	engine   *packaging.Engine

	tokens *tokenStore
}

// NewServer builds a producer API server. username/password are the
// single credential pair POST /auth/api-token-auth/ accepts; database
// backs GET /completed-torrents/ (Torrent rows at "Added").
func NewServer(port int, username, password string, database *db.DB, engine *packaging.Engine) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		port:     port,
		username: username,
		password: password,
		database: database,
		engine:   engine,
		tokens:   newTokenStore(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/auth/api-token-auth/", s.handleTokenAuth).Methods(http.MethodPost)

	protected := s.router.NewRoute().Subrouter()
	protected.Use(s.tokenAuthMiddleware)

	protected.HandleFunc("/completed-torrents/", s.handleCompletedTorrents).Methods(http.MethodGet)
	protected.HandleFunc("/torrents/", s.handleTorrents).Methods(http.MethodGet, http.MethodPost)
	protected.HandleFunc("/download/{filename}/", s.handleDownload).Methods(http.MethodGet, http.MethodDelete)

	log.Println("producer API routes configured")
}

// Start blocks serving the producer API until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("Starting producer API on %s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the producer API server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down producer API...")
	return s.server.Shutdown(ctx)
}
