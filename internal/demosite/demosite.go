// Package demosite serves pages with known accessibility defects so the
// scanner can be exercised end to end against predictable input.
package demosite

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Config holds configuration for the demo site.
type Config struct {
	// Port is the port on which the demo site listens.
	Port int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Port: 9999}
}

// Server serves the demo pages.
type Server struct {
	cfg   Config
	pages map[string]PageDefinition
}

func NewServer(cfg Config) *Server {
	pages := make(map[string]PageDefinition)
	for _, p := range GetAllPages() {
		pages[p.Path] = p
	}
	return &Server{cfg: cfg, pages: pages}
}

// Handler returns the site's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	for path := range s.pages {
		p := path // capture for closure
		mux.HandleFunc(p, s.pageHandler(p))
	}

	// Machine-readable index of pages and their planted defects, for
	// comparing scan output against expectations.
	mux.HandleFunc("/demo/pages", s.pagesIndexHandler)

	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// Start starts the demo site and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo site listening on http://localhost%s\n", addr)
	fmt.Printf("Page index at http://localhost%s/demo/pages\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := s.pages[path]
		if !ok || r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page.HTML)
	}
}

func (s *Server) pagesIndexHandler(w http.ResponseWriter, _ *http.Request) {
	type pageInfo struct {
		Path        string   `json:"path"`
		Description string   `json:"description"`
		Defects     []string `json:"defects,omitempty"`
	}
	out := make([]pageInfo, 0, len(s.pages))
	for _, p := range GetAllPages() {
		out = append(out, pageInfo{Path: p.Path, Description: p.Description, Defects: p.Defects})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
