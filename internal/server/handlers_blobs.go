package server

import (
	"fmt"
	"net/http"
	"strconv"

	"blobguard/internal/api"
)

func (s *Server) handleWriteBlob(w http.ResponseWriter, r *http.Request) {
	if !s.acquireLimiter(s.writeLimiter, w, r, "write") {
		return
	}
	defer s.releaseLimiter(s.writeLimiter)

	signed, ok := signedRequestFromContext(r.Context())
	if !ok {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("request is not signed")))
		return
	}
	query := r.URL.Query()
	epochs, err := parseEpochs(query.Get(api.QueryEpochs))
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	attrs, err := parseAttributes(query[api.QueryAttribute])
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}

	result, err := s.backend.WriteBlob(r.Context(), signed.Body, signed.Signer, attrs, epochs)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.log().Info("blob written", "blob_id", result.BlobID, "size", len(signed.Body), "end_epoch", result.EndEpoch, "signer", signed.Signer.Address())
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleReadBlob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	data, err := s.backend.ReadBlob(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log().Debug("write blob response", "blob_id", id, "error", err)
	}
}

func (s *Server) handleBlobInfo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	info, err := s.backend.GetBlobInfo(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBlobMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	attrs, err := s.backend.GetBlobMetadata(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	s.writeJSON(w, http.StatusOK, attrs)
}

func (s *Server) handleBlobProviders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	providers, err := s.backend.GetStorageProviders(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	if providers == nil {
		providers = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.ProvidersResponse{BlobID: id, Providers: providers})
}

func (s *Server) handleBlobAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	available, err := s.backend.VerifyProofOfAvailability(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AvailabilityResponse{BlobID: id, Available: available})
}

func (s *Server) handleExtendBlob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	signed, ok := signedRequestFromContext(r.Context())
	if !ok {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("request is not signed")))
		return
	}

	var req api.ExtendRequest
	if err := decodeJSONBody(signed.Body, &req); err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	if req.BlobID != id {
		err := badRequestCode(fmt.Errorf("signed blob_id %q does not match path %q", req.BlobID, id), ErrCodeInvalidID)
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}
	if req.AdditionalEpochs <= 0 {
		err := badRequestCode(fmt.Errorf("additional_epochs must be positive"), ErrCodeInvalidEpochs)
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}

	receipt, err := s.backend.SubmitStorageExtension(r.Context(), id, req.AdditionalEpochs, signed.Signer)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}
