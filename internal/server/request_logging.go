package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"blobguard/internal/api"
)

const headerRequestID = "X-Request-ID"

// responseRecorder captures the status and byte count a handler produced.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *responseRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *responseRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withRequestLogging tags each request with an id and logs its outcome.
// Server errors log at error, client errors at warn, the rest at debug.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"route", r.Pattern,
			"status", rec.code(),
			"bytes_in", r.ContentLength,
			"bytes_out", rec.written,
			"duration", time.Since(start).String(),
		}
		if id := r.PathValue("id"); id != "" {
			attrs = append(attrs, "blob_id", id)
		}
		if signer := r.Header.Get(api.HeaderSignerAddress); signer != "" {
			attrs = append(attrs, "signer", signer)
		}

		level := slog.LevelDebug
		switch {
		case rec.code() >= 500:
			level = slog.LevelError
		case rec.code() >= 400:
			level = slog.LevelWarn
		}
		s.log().Log(r.Context(), level, "request complete", attrs...)
	})
}
