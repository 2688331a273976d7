package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Ledger.
	mux.HandleFunc("GET /v1/epoch", s.handleEpoch)
	mux.HandleFunc("GET /v1/objects/{id}", s.handleObjectState)

	// Blobs.
	mux.HandleFunc("PUT /v1/blobs", s.withSignature(blobMaxBody, s.handleWriteBlob))
	mux.HandleFunc("GET /v1/blobs/{id}", s.handleReadBlob)
	mux.HandleFunc("GET /v1/blobs/{id}/info", s.handleBlobInfo)
	mux.HandleFunc("GET /v1/blobs/{id}/metadata", s.handleBlobMetadata)
	mux.HandleFunc("GET /v1/blobs/{id}/providers", s.handleBlobProviders)
	mux.HandleFunc("GET /v1/blobs/{id}/poa", s.handleBlobAvailability)
	mux.HandleFunc("POST /v1/blobs/{id}/extend", s.withSignature(defaultJSONMaxBody, s.handleExtendBlob))

	return mux
}
