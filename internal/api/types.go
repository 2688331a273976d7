package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// EpochResponse is returned by GET /v1/epoch.
type EpochResponse struct {
	Epoch int64 `json:"epoch"`
}

// ProvidersResponse lists the providers serving a blob.
type ProvidersResponse struct {
	BlobID    string   `json:"blob_id"`
	Providers []string `json:"providers"`
}

// AvailabilityResponse reports a proof-of-availability check.
type AvailabilityResponse struct {
	BlobID    string `json:"blob_id"`
	Available bool   `json:"available"`
}

// ExtendRequest is the signed body of POST /v1/blobs/{id}/extend.
type ExtendRequest struct {
	BlobID           string `json:"blob_id"`
	AdditionalEpochs int64  `json:"additional_epochs"`
}

const (
	// HeaderSignerAddress carries the hex ed25519 public key of the signer.
	HeaderSignerAddress = "X-Signer-Address"
	// HeaderSignature carries the hex signature over the raw request body.
	HeaderSignature = "X-Signature"

	QueryEpochs    = "epochs"
	QueryAttribute = "attr"
)
