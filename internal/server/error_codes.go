package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidID        = 1004
	ErrCodeMissingRequired  = 1005
	ErrCodeInvalidEpochs    = 1006
	ErrCodeInvalidAttribute = 1007

	// Domain state (2xxx)
	ErrCodeBlobNotFound   = 2001
	ErrCodeObjectNotFound = 2002

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeInvalidSignature  = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeBackendFailure = 4002
	ErrCodeUnavailable    = 4003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeInvalidSignature
	case 404:
		return ErrCodeBlobNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 503:
		return ErrCodeUnavailable
	default:
		return 0
	}
}
