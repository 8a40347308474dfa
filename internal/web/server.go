// Package web exposes the clock's sync state on the local network: an HTML
// page showing local time and sync health, and the same snapshot as JSON for
// scripts.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/ntp-clock/internal/status"
)

const (
	pathPage  = "/"
	pathIndex = "/index.html"
	pathJSON  = "/index.json"
)

// Server renders tracker snapshots. Every request takes a fresh snapshot, so
// the page never shows a clock older than the last poll.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New returns a Server bound to addr. Nothing listens until Serve or
// ListenAndServe is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(pathPage, s.handlePage)
	mux.HandleFunc(pathIndex, s.handlePage)
	mux.HandleFunc(pathJSON, s.handleJSON)
	return mux
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// The mux routes every unmatched path to "/", so anything else is a 404 here.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != pathPage && r.URL.Path != pathIndex {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	noCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	noCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// The displayed time goes stale within a second.
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
