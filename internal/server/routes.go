package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Listing page and submissions.
	mux.HandleFunc("GET /home", s.handleHome)
	mux.HandleFunc("POST /home", s.handleSubmitPost)

	mux.HandleFunc("GET /{$}", s.handleRoot)

	return mux
}
