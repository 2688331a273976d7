// Package api is the HTTP client and wire types for the blobguard gateway.
package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"blobguard/internal/models"
	"blobguard/internal/network"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "BLOBGUARD_HTTP_TIMEOUT"
)

// Client talks to a blobguard gateway. It implements network.LedgerClient
// and network.StorageClient.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ network.LedgerClient  = (*Client)(nil)
	_ network.StorageClient = (*Client)(nil)
)

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the gateway is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var resp HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
}

func (c *Client) GetSystemEpoch(ctx context.Context) (int64, error) {
	var resp EpochResponse
	err := c.do(ctx, http.MethodGet, "/v1/epoch", nil, nil, &resp)
	return resp.Epoch, err
}

func (c *Client) GetObjectState(ctx context.Context, id string) (network.ObjectState, error) {
	var resp network.ObjectState
	err := c.do(ctx, http.MethodGet, "/v1/objects/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) SubmitStorageExtension(ctx context.Context, blobID string, additionalEpochs int64, signer network.Signer) (network.ExtensionReceipt, error) {
	var resp network.ExtensionReceipt
	if signer == nil {
		return resp, fmt.Errorf("signer is required")
	}
	payload, err := json.Marshal(ExtendRequest{BlobID: blobID, AdditionalEpochs: additionalEpochs})
	if err != nil {
		return resp, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/blobs/"+url.PathEscape(blobID)+"/extend", nil, payload)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := signRequest(ctx, req, signer, payload); err != nil {
		return resp, err
	}
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) WriteBlob(ctx context.Context, data []byte, signer network.Signer, attributes map[string]string, epochs int64) (network.WriteResult, error) {
	var resp network.WriteResult
	if signer == nil {
		return resp, fmt.Errorf("signer is required")
	}
	query := url.Values{}
	query.Set(QueryEpochs, strconv.FormatInt(epochs, 10))
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Add(QueryAttribute, k+"="+attributes[k])
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/v1/blobs", query, data)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if err := signRequest(ctx, req, signer, data); err != nil {
		return resp, err
	}
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(blobID), nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) GetBlobInfo(ctx context.Context, blobID string) (models.BlobInfo, error) {
	var resp models.BlobInfo
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(blobID)+"/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetBlobMetadata(ctx context.Context, blobID string) (map[string]string, error) {
	resp := map[string]string{}
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(blobID)+"/metadata", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetStorageProviders(ctx context.Context, blobID string) ([]string, error) {
	var resp ProvidersResponse
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(blobID)+"/providers", nil, nil, &resp)
	return resp.Providers, err
}

func (c *Client) VerifyProofOfAvailability(ctx context.Context, blobID string) (bool, error) {
	var resp AvailabilityResponse
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(blobID)+"/poa", nil, nil, &resp)
	return resp.Available, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload []byte) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	return http.NewRequestWithContext(ctx, method, endpoint, reader)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func signRequest(ctx context.Context, req *http.Request, signer network.Signer, payload []byte) error {
	sig, err := signer.Sign(ctx, payload)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderSignerAddress, signer.Address())
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
