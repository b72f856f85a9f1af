// Package server sets up the HTTP router, middleware, and request handlers
// for the demo gateway — a thin OpenAI-compatible facade over a
// forgeai.Client per model.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgeai-go/forgeai"
	"github.com/forgeai-go/forgeai/internal/config"
)

// Server holds the HTTP router and all dependencies that handlers need.
type Server struct {
	router chi.Router
	cfg    *config.Config

	// models maps model names to the forgeai.Client that handles them,
	// e.g. "gpt-4o" -> a Client wrapping the OpenAI adapter,
	// "claude-haiku-4-5-20251001" -> a Client wrapping Anthropic. Each
	// entry can itself be a Client wrapping a router.FailoverRouter, so
	// "model" here really means "whatever routing policy main.go built
	// for that name" — the gateway layer never needs to know the
	// difference between one provider and several.
	models map[string]*forgeai.Client
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. The models parameter is the model
// registry; main.go builds it from the config file's provider entries.
func New(cfg *config.Config, models map[string]*forgeai.Client) *Server {
	s := &Server{cfg: cfg, models: models}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/v1/chat/completions", s.handleChatCompletions)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
