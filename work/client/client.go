package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tvvoo-addon/work/config"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/ratelimit"
)

// User agent strings the backend expects. The ping and catalog endpoints are
// called with the mobile app's okhttp agent, the resolve endpoint with the
// MediaHubMX agent; sending the wrong one gets requests rejected.
const (
	AppUserAgent     = "okhttp/4.11.0"
	ResolveUserAgent = "MediaHubMX/2"
)

// BackendClient wraps http.Client to automatically set the fingerprint headers
// the backend expects and to pace outbound requests through a shared leaky
// bucket. All backend traffic (ping, catalog, resolve, logo sources) goes
// through one instance so the pacing applies globally.
type BackendClient struct {
	Client  *http.Client
	config  *config.Config
	limiter ratelimit.Limiter
}

// New creates a BackendClient with a tuned transport. There is no overall
// client timeout; every call site passes a bounded context instead.
func New(cfg *config.Config) *BackendClient {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &BackendClient{
		Client:  httpClient,
		config:  cfg,
		limiter: ratelimit.New(cfg.RequestsPerSec),
	}
}

// Do waits for the rate limiter, applies the default backend headers and
// executes the request. Headers already present on the request are kept.
func (bc *BackendClient) Do(req *http.Request) (*http.Response, error) {
	bc.limiter.Take()
	bc.setHeaders(req)
	return bc.Client.Do(req)
}

// setHeaders pins the shared fingerprint headers. Accept-Encoding is set
// explicitly because the backend's WAF expects it as part of the app
// fingerprint; that disables Go's transparent decompression, so Body
// re-wraps gzip responses.
func (bc *BackendClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", AppUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip")
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
}

// NewJSONRequest builds a POST request with a JSON-encoded payload and the
// given user agent. Extra headers (signature, IP hints) are applied verbatim.
func NewJSONRequest(ctx context.Context, url, userAgent string, payload any, extra map[string]string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Body returns a reader for the response body, decompressing it when the
// server answered with Content-Encoding: gzip. The caller still closes the
// response body; the gzip reader does not need separate closing for our
// read-fully usage.
func Body(resp *http.Response) (io.Reader, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		return gzip.NewReader(resp.Body)
	}
	return resp.Body, nil
}

// DecodeJSON reads the (possibly gzipped) response body and unmarshals it
// into v.
func DecodeJSON(resp *http.Response, v any) error {
	r, err := Body(resp)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
