package server

import (
	"net/http"

	"chunkvault/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := api.InfoResponse{
		Version:           s.opts.Version,
		Backend:           s.backend.Name(),
		ChunkSize:         s.opts.ChunkSize,
		DefaultDatabase:   s.opts.DefaultDatabase,
		DefaultCollection: s.opts.DefaultCollection,
		MaxUploadBytes:    s.opts.MaxUploadBytes,
		WAVEnabled:        s.opts.WAV != nil,
	}

	s.writeJSON(w, http.StatusOK, resp)
}
