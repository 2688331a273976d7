package server

import (
	"net/http"

	"blobguard/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := s.backend.GetSystemEpoch(r.Context())
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EpochResponse{Epoch: epoch})
}

func (s *Server) handleObjectState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	state, err := s.backend.GetObjectState(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}
