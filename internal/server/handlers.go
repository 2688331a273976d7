package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"blobguard/internal/api"
	"blobguard/internal/localnet"
	"blobguard/internal/network"
)

const (
	defaultJSONMaxBody = 1 << 20  // 1 MiB
	blobMaxBody        = 64 << 20 // 64 MiB
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status == http.StatusServiceUnavailable:
		s.log().Warn("request failed", fields...)
		message = "storage network unavailable"
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// writeBackendError maps backend errors onto HTTP statuses.
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := backendError(err)
	s.writeErrorReq(w, r, httpStatusFromError(apiErr), apiErr)
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func unauthorized(err error) error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, err)
}

func forbidden(err error) error {
	return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeInvalidSignature, err)
}

func unavailable(err error) error {
	return makeAPIError(http.StatusServiceUnavailable, "unavailable", ErrCodeUnavailable, err)
}

func backendFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeBackendFailure, err)
}

func backendError(err error) error {
	switch {
	case errors.Is(err, network.ErrBlobNotFound):
		return notFoundCode(err, ErrCodeBlobNotFound)
	case errors.Is(err, localnet.ErrInvalidRequest):
		return badRequestCode(err, ErrCodeInvalidArgument)
	case errors.Is(err, localnet.ErrUnavailable):
		return unavailable(err)
	default:
		return backendFailure(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func classifyReadBodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return makeAPIError(http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge, fmt.Errorf("request body too large"))
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func decodeJSONBody(body []byte, dst any) error {
	if len(body) == 0 {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequestCode(err, ErrCodeInvalidJSON)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, classifyReadBodyError(err)
	}
	return body, nil
}

func parseEpochs(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, badRequestCode(fmt.Errorf("%s is required", api.QueryEpochs), ErrCodeMissingRequired)
	}
	epochs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || epochs <= 0 {
		return 0, badRequestCode(fmt.Errorf("invalid %s: %q", api.QueryEpochs, value), ErrCodeInvalidEpochs)
	}
	return epochs, nil
}

func parseAttributes(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, badRequestCode(fmt.Errorf("invalid attribute %q: expected key=value", raw), ErrCodeInvalidAttribute)
		}
		attrs[key] = value
	}
	return attrs, nil
}

func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", badRequestCode(fmt.Errorf("id is required"), ErrCodeInvalidID)
	}
	return id, nil
}
