// Package signature obtains, rewrites and spends the opaque authorization
// signatures the backend issues. A signature is a base64-encoded JSON envelope
// whose `data` field is itself a JSON string carrying IP metadata; the
// geographic unlock of a stream depends on the IPs recorded inside it.
package signature

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/metrics"
)

// SignatureHeader is the request header carrying the signature on catalog and
// resolve calls.
const SignatureHeader = "mediahubmx-signature"

// PlaybackUserAgent and PlaybackReferer are the fixed pair of headers the
// backend's CDN requires on playback requests. They are returned verbatim in
// every stream descriptor.
const (
	PlaybackUserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel Build/TQ3A.230805.001; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/120.0.0.0 Mobile Safari/537.36"
	PlaybackReferer   = "https://vavoo.to/"
)

// StreamDescriptor is the final product of a clean resolve: a playable URL and
// the headers a downstream player must send with it.
type StreamDescriptor struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// Service implements the ping / rewrite / resolve operations against the
// backend. All public operations degrade to empty values on failure and never
// panic past this boundary.
type Service struct {
	Config *config.Config
	Client *client.BackendClient
	Logger *logger.Logger
}

// New creates a signature Service bound to the given config and client.
func New(cfg *config.Config, bc *client.BackendClient, log *logger.Logger) *Service {
	return &Service{
		Config: cfg,
		Client: bc,
		Logger: log,
	}
}

// pingResponse is the only field we extract from a ping reply. Everything
// else in the response is backend-private.
type pingResponse struct {
	AddonSig string `json:"addonSig"`
}

// resolveEntry is one element of a resolve reply; the endpoint answers with
// either a single object or a single-element array of these.
type resolveEntry struct {
	URL string `json:"url"`
}

// Ping obtains a fresh signature from the backend. The clientIP (or "" for
// the server's own IP) is placed in the fingerprint's ipLocation field; when
// known it is also forwarded through the minimal IP-hint headers.
//
// Returns the addonSig value, or "" on any failure.
func (s *Service) Ping(ctx context.Context, clientIP string) string {
	return s.ping(ctx, clientIP, hintHeaders(clientIP))
}

// ping is the raw ping call with explicit hint headers, shared by Ping and
// the no-header fallback inside ResolveClean.
func (s *Service) ping(ctx context.Context, ipLocation string, hints map[string]string) string {
	ctx, cancel := context.WithTimeout(ctx, s.Config.PingTimeout)
	defer cancel()

	req, err := client.NewJSONRequest(ctx, s.Config.PingURL, client.AppUserAgent, s.fingerprint(ipLocation), hints)
	if err != nil {
		s.Logger.Error("{signature - ping} failed to build request: %v", err)
		return ""
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Warn("{signature - ping} request failed: %v", err)
		metrics.SignaturePings.WithLabelValues("error").Inc()
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.Logger.Warn("{signature - ping} backend answered %d", resp.StatusCode)
		metrics.SignaturePings.WithLabelValues("error").Inc()
		return ""
	}

	var pr pingResponse
	if err := client.DecodeJSON(resp, &pr); err != nil {
		s.Logger.Warn("{signature - ping} undecodable response: %v", err)
		metrics.SignaturePings.WithLabelValues("error").Inc()
		return ""
	}
	if pr.AddonSig == "" {
		s.Logger.Warn("{signature - ping} response carried no addonSig")
		metrics.SignaturePings.WithLabelValues("empty").Inc()
		return ""
	}

	metrics.SignaturePings.WithLabelValues("ok").Inc()
	s.Logger.Debug("{signature - ping} got signature %s (ipLocation=%q)", s.logSig(pr.AddonSig), ipLocation)
	return pr.AddonSig
}

// RewriteIP rewrites the IP metadata embedded in a signature so the given
// client IP takes priority: an `ips` list gets the IP prepended with any
// existing occurrence removed from the remainder, a scalar `ip` field is
// overwritten. The transformation is strictly best-effort: on any decode or
// parse failure, and for payloads carrying neither field, the original
// signature is returned unchanged. Structure that was not present is never
// fabricated.
func RewriteIP(sig, clientIP string) string {
	if sig == "" || clientIP == "" {
		return sig
	}

	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		// the backend has been seen issuing unpadded signatures
		if decoded, err = base64.RawStdEncoding.DecodeString(sig); err != nil {
			return sig
		}
	}

	var envelope map[string]any
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		return sig
	}

	dataStr, ok := envelope["data"].(string)
	if !ok {
		return sig
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(dataStr), &payload); err != nil {
		return sig
	}

	changed := false

	if rawIps, ok := payload["ips"].([]any); ok {
		newIps := make([]any, 0, len(rawIps)+1)
		newIps = append(newIps, clientIP)
		for _, v := range rawIps {
			if str, ok := v.(string); ok && (str == "" || str == clientIP) {
				continue
			}
			newIps = append(newIps, v)
		}
		payload["ips"] = newIps
		changed = true
	}

	if _, ok := payload["ip"].(string); ok {
		payload["ip"] = clientIP
		changed = true
	}

	if !changed {
		return sig
	}

	newData, err := json.Marshal(payload)
	if err != nil {
		return sig
	}
	envelope["data"] = string(newData)

	newEnvelope, err := json.Marshal(envelope)
	if err != nil {
		return sig
	}

	return base64.StdEncoding.EncodeToString(newEnvelope)
}

// Resolve exchanges a channel locator for a playable URL using the given
// signature. The endpoint answers with either `[{url}]` or `{url}`; the URL
// is extracted from whichever shape is present. Returns "" on non-success
// status or a missing field.
func (s *Service) Resolve(ctx context.Context, sig, backendURL string) string {
	return s.resolve(ctx, sig, backendURL, nil)
}

func (s *Service) resolve(ctx context.Context, sig, backendURL string, hints map[string]string) string {
	ctx, cancel := context.WithTimeout(ctx, s.Config.ResolveTimeout)
	defer cancel()

	payload := map[string]any{
		"language":      s.Config.Language,
		"region":        s.Config.Region,
		"url":           backendURL,
		"clientVersion": s.Config.ClientVersion,
	}

	headers := map[string]string{SignatureHeader: sig}
	for k, v := range hints {
		headers[k] = v
	}

	req, err := client.NewJSONRequest(ctx, s.Config.ResolveURL, client.ResolveUserAgent, payload, headers)
	if err != nil {
		s.Logger.Error("{signature - resolve} failed to build request: %v", err)
		return ""
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Warn("{signature - resolve} request failed for %s: %v", s.Config.LogURL(backendURL), err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.Logger.Warn("{signature - resolve} backend answered %d for %s", resp.StatusCode, s.Config.LogURL(backendURL))
		return ""
	}

	// The endpoint answers with [{url}] or {url}; try both shapes.
	var raw json.RawMessage
	if err := client.DecodeJSON(resp, &raw); err != nil {
		s.Logger.Warn("{signature - resolve} undecodable response: %v", err)
		return ""
	}

	var list []resolveEntry
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].URL != "" {
		return list[0].URL
	}

	var single resolveEntry
	if err := json.Unmarshal(raw, &single); err == nil && single.URL != "" {
		return single.URL
	}

	s.Logger.Warn("{signature - resolve} response carried no url field")
	return ""
}

// ResolveClean is the composed operation behind a stream request: ping with
// the viewer's IP, rewrite the signature to prioritize that IP, resolve the
// locator, and return the playable URL with the fixed playback header pair.
//
// Failure handling follows one documented fallback: when the ping with
// forwarded IP hints fails, it is retried once with the hint headers removed
// and ipLocation forced empty, which protects against backend edge rules that
// reject certain forwarded-IP shapes. Every failure path returns nil.
func (s *Service) ResolveClean(ctx context.Context, backendURL, clientIP string) *StreamDescriptor {
	if backendURL == "" {
		return nil
	}

	started := time.Now()
	metrics.StreamResolves.WithLabelValues("attempt").Inc()

	hints := hintHeaders(clientIP)
	sig := s.ping(ctx, clientIP, hints)
	if sig == "" && clientIP != "" {
		s.Logger.Info("{signature - ResolveClean} ping fallback without client headers")
		sig = s.ping(ctx, "", nil)
	}
	if sig == "" {
		metrics.StreamResolves.WithLabelValues("no_signature").Inc()
		return nil
	}

	if clientIP != "" {
		sig = RewriteIP(sig, clientIP)
	}

	resolved := s.resolve(ctx, sig, backendURL, hints)
	if resolved == "" {
		metrics.StreamResolves.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.StreamResolves.WithLabelValues("ok").Inc()
	s.Logger.Debug("{signature - ResolveClean} resolved %s in %s", s.Config.LogURL(resolved), time.Since(started).Round(time.Millisecond))

	return &StreamDescriptor{
		URL: resolved,
		Headers: map[string]string{
			"User-Agent": PlaybackUserAgent,
			"Referer":    PlaybackReferer,
		},
	}
}

// hintHeaders returns the minimal IP forwarding headers for a known client
// IP, or nil when none is known. Forwarding only these two avoids tripping
// the backend's WAF on exotic header combinations.
func hintHeaders(clientIP string) map[string]string {
	if clientIP == "" {
		return nil
	}
	return map[string]string{
		"x-forwarded-for": clientIP,
		"x-real-ip":       clientIP,
	}
}

// logSig renders a signature for logging, masked unless full signature
// logging is enabled.
func (s *Service) logSig(sig string) string {
	if s.Config.LogSignatureFull {
		return sig
	}
	return MaskSignature(sig)
}

// MaskSignature hides the middle of a signature, keeping 8 characters of each
// end for correlation between log lines.
func MaskSignature(sig string) string {
	if sig == "" {
		return ""
	}
	if len(sig) <= 16 {
		return strings.Repeat("*", len(sig))
	}
	return sig[:8] + strings.Repeat("*", len(sig)-16) + sig[len(sig)-8:]
}
