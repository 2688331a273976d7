package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"blobguard/internal/api"
	"blobguard/internal/network"
)

type signedRequestKey struct{}

// signedRequest is the verified body and signer of a mutating request.
type signedRequest struct {
	Body   []byte
	Signer requestSigner
}

// requestSigner stands in for the caller's key inside the backend. Its
// signature has already been checked against the request body.
type requestSigner struct {
	address   string
	signature []byte
}

func (s requestSigner) Address() string { return s.address }

func (s requestSigner) Sign(ctx context.Context, _ []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.signature, nil
}

var _ network.Signer = requestSigner{}

func contextWithSignedRequest(ctx context.Context, req signedRequest) context.Context {
	return context.WithValue(ctx, signedRequestKey{}, req)
}

func signedRequestFromContext(ctx context.Context) (signedRequest, bool) {
	if ctx == nil {
		return signedRequest{}, false
	}
	req, ok := ctx.Value(signedRequestKey{}).(signedRequest)
	return req, ok
}

// withSignature reads the request body and verifies the ed25519 signature
// headers before calling next.
func (s *Server) withSignature(limit int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := strings.TrimSpace(r.Header.Get(api.HeaderSignerAddress))
		sigHex := strings.TrimSpace(r.Header.Get(api.HeaderSignature))
		if address == "" || sigHex == "" {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("%s and %s headers are required", api.HeaderSignerAddress, api.HeaderSignature)))
			return
		}
		sig, err := hex.DecodeString(sigHex)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("signature is not hex encoded")))
			return
		}

		body, err := readBody(w, r, limit)
		if err != nil {
			s.writeErrorReq(w, r, httpStatusFromError(err), err)
			return
		}
		if err := network.VerifySignature(address, body, sig); err != nil {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(err))
			return
		}

		ctx := contextWithSignedRequest(r.Context(), signedRequest{
			Body:   body,
			Signer: requestSigner{address: address, signature: sig},
		})
		next(w, r.WithContext(ctx))
	}
}
