package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /info", s.handleInfo)

	// Blobs.
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("GET /list", s.handleList)

	return mux
}
