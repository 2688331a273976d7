package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"blobguard/internal/api"
	"blobguard/internal/localnet"
	"blobguard/internal/network"
	"blobguard/internal/verify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, opts localnet.Options) (*localnet.Network, *api.Client) {
	t.Helper()
	opts.Dir = t.TempDir()
	opts.Logger = discardLogger()
	backend, err := localnet.Open(opts)
	if err != nil {
		t.Fatalf("open localnet: %v", err)
	}
	srv := New("", backend, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return backend, api.NewClient(ts.URL)
}

func testSigner(t *testing.T) *network.KeySigner {
	t.Helper()
	signer, _, err := network.GenerateKeySigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	return signer
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7433")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7433" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7433")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7433")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7433" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestWithSignature(t *testing.T) {
	srv := New("", nil, discardLogger())
	signer := testSigner(t)
	body := []byte("payload")

	newHandler := func(called *bool) http.Handler {
		return srv.withSignature(1024, func(w http.ResponseWriter, r *http.Request) {
			*called = true
			signed, ok := signedRequestFromContext(r.Context())
			if !ok || !bytes.Equal(signed.Body, body) || signed.Signer.Address() != signer.Address() {
				t.Errorf("unexpected signed request: %+v", signed)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}

	t.Run("denies missing headers", func(t *testing.T) {
		called := false
		req := httptest.NewRequest(http.MethodPut, "/v1/blobs", bytes.NewReader(body))
		w := httptest.NewRecorder()
		newHandler(&called).ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("decode error response: %v", err)
		}
		if errResp.ErrorCode != ErrCodeUnauthorized {
			t.Fatalf("expected error_code %d, got %d", ErrCodeUnauthorized, errResp.ErrorCode)
		}
		if called {
			t.Fatal("next handler should not be called")
		}
	})

	t.Run("denies tampered body", func(t *testing.T) {
		called := false
		sig, _ := signer.Sign(context.Background(), body)
		req := httptest.NewRequest(http.MethodPut, "/v1/blobs", bytes.NewReader([]byte("tampered")))
		req.Header.Set(api.HeaderSignerAddress, signer.Address())
		req.Header.Set(api.HeaderSignature, hex.EncodeToString(sig))
		w := httptest.NewRecorder()
		newHandler(&called).ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		if called {
			t.Fatal("next handler should not be called")
		}
	})

	t.Run("allows valid signature", func(t *testing.T) {
		called := false
		sig, _ := signer.Sign(context.Background(), body)
		req := httptest.NewRequest(http.MethodPut, "/v1/blobs", bytes.NewReader(body))
		req.Header.Set(api.HeaderSignerAddress, signer.Address())
		req.Header.Set(api.HeaderSignature, hex.EncodeToString(sig))
		w := httptest.NewRecorder()
		newHandler(&called).ServeHTTP(w, req)
		if w.Code != http.StatusNoContent || !called {
			t.Fatalf("expected next handler to run, got %d", w.Code)
		}
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		called := false
		big := bytes.Repeat([]byte("x"), 2048)
		sig, _ := signer.Sign(context.Background(), big)
		req := httptest.NewRequest(http.MethodPut, "/v1/blobs", bytes.NewReader(big))
		req.Header.Set(api.HeaderSignerAddress, signer.Address())
		req.Header.Set(api.HeaderSignature, hex.EncodeToString(sig))
		w := httptest.NewRecorder()
		newHandler(&called).ServeHTTP(w, req)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}

func TestGatewayRoundTrip(t *testing.T) {
	_, client := newTestGateway(t, localnet.Options{StartEpoch: 40})
	ctx := context.Background()
	signer := testSigner(t)
	data := bytes.Repeat([]byte{0x42}, 1024)

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	written, err := client.WriteBlob(ctx, data, signer, map[string]string{"content-type": "application/octet-stream", "owner": "team=a"}, 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if written.RegisteredEpoch != 40 || written.EndEpoch != 45 {
		t.Fatalf("unexpected write result: %+v", written)
	}

	got, err := client.ReadBlob(ctx, written.BlobID)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("read: %v", err)
	}
	info, err := client.GetBlobInfo(ctx, written.BlobID)
	if err != nil || !info.Certified() || info.Size != 1024 {
		t.Fatalf("info: %+v %v", info, err)
	}
	attrs, err := client.GetBlobMetadata(ctx, written.BlobID)
	if err != nil || attrs["owner"] != "team=a" {
		t.Fatalf("metadata: %v %v", attrs, err)
	}
	providers, err := client.GetStorageProviders(ctx, written.BlobID)
	if err != nil || len(providers) != len(localnet.DefaultProviders) {
		t.Fatalf("providers: %v %v", providers, err)
	}
	available, err := client.VerifyProofOfAvailability(ctx, written.BlobID)
	if err != nil || !available {
		t.Fatalf("poa: %v %v", available, err)
	}
	epoch, err := client.GetSystemEpoch(ctx)
	if err != nil || epoch != 40 {
		t.Fatalf("epoch: %d %v", epoch, err)
	}
	state, err := client.GetObjectState(ctx, written.ObjectID)
	if err != nil || state.Owner != signer.Address() {
		t.Fatalf("object state: %+v %v", state, err)
	}

	receipt, err := client.SubmitStorageExtension(ctx, written.BlobID, 3, signer)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if receipt.NewExpirationEpoch != 48 || receipt.Digest == "" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestGatewayErrors(t *testing.T) {
	backend, client := newTestGateway(t, localnet.Options{})
	ctx := context.Background()

	_, err := client.GetBlobInfo(ctx, "missing")
	if !errors.Is(err, network.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != ErrCodeBlobNotFound {
		t.Fatalf("expected blob not found code, got %v", err)
	}

	if _, err := client.WriteBlob(ctx, []byte("x"), testSigner(t), nil, 0); !errors.As(err, &apiErr) || apiErr.ErrorCode != ErrCodeInvalidEpochs {
		t.Fatalf("expected invalid epochs, got %v", err)
	}

	written, err := client.WriteBlob(ctx, []byte("flaky"), testSigner(t), nil, 2)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	backend.FailNextReads(written.BlobID, 1)
	if _, err := client.ReadBlob(ctx, written.BlobID); !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if _, err := client.ReadBlob(ctx, written.BlobID); err != nil {
		t.Fatalf("expected recovery after injected failure, got %v", err)
	}
}

func TestExtendRejectsMismatchedBlobID(t *testing.T) {
	backend, _ := newTestGateway(t, localnet.Options{})
	srv := New("", backend, discardLogger())
	signer := testSigner(t)

	payload, _ := json.Marshal(api.ExtendRequest{BlobID: "other", AdditionalEpochs: 2})
	sig, _ := signer.Sign(context.Background(), payload)
	req := httptest.NewRequest(http.MethodPost, "/v1/blobs/target/extend", bytes.NewReader(payload))
	req.Header.Set(api.HeaderSignerAddress, signer.Address())
	req.Header.Set(api.HeaderSignature, hex.EncodeToString(sig))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVerifyThroughGateway(t *testing.T) {
	backend, client := newTestGateway(t, localnet.Options{StartEpoch: 12})
	ctx := context.Background()
	data := []byte("verified over http")

	written, err := client.WriteBlob(ctx, data, testSigner(t), map[string]string{"content-type": "text/plain"}, 4)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	verifier := verify.NewBlobVerifier(client, discardLogger())
	result, err := verifier.VerifyBlob(ctx, written.BlobID, data, map[string]string{"content-type": "text/plain"}, verify.Options{
		RequireCertification: true,
		VerifyAttributes:     true,
		RequireAvailability:  true,
		MinProviders:         3,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Success || *result.Details.CertifiedEpoch != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}

	backend.Corrupt(written.BlobID)
	if _, err := verifier.VerifyBlob(ctx, written.BlobID, data, nil, verify.Options{}); !errors.Is(err, verify.ErrContentMismatch) {
		t.Fatalf("expected content mismatch, got %v", err)
	}
}

func TestRequestIDHeader(t *testing.T) {
	backend, err := localnet.Open(localnet.Options{Dir: t.TempDir(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("open localnet: %v", err)
	}
	handler := New("", backend, discardLogger()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/epoch", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatal("expected a generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/blobs/missing/info", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(headerRequestID); got != "req-42" {
		t.Fatalf("expected caller request id to be echoed, got %q", got)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown blob, got %d", rec.Code)
	}
}
