// Package clientip extracts the best-guess public client IP from an inbound
// request's proxy headers and socket address. Resolution is a pure function of
// the request: no side effects, and absence of any signal yields an empty
// string, never an error.
package clientip

import (
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

// directHeaders is the fixed precedence list of single-value proxy headers
// consulted when X-Forwarded-For is absent.
var directHeaders = []string{
	"Cf-Connecting-Ip",
	"True-Client-Ip",
	"X-Real-Ip",
	"X-Client-Ip",
	"Fly-Client-Ip",
	"Fastly-Client-Ip",
	"X-Forwarded",
	"Forwarded",
}

// reservedPrefixes is the table of private/reserved ranges. An address inside
// any of these is never chosen as a "public" candidate.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fd00::/8"),
	netip.MustParsePrefix("fe80::/10"),
}

// Resolve extracts the client IP from the request, in strict precedence order:
//
//  1. X-Forwarded-For: first public candidate, else first normalized
//     non-empty candidate.
//  2. The fixed single-value proxy header list, first present value.
//  3. The socket remote address.
//
// Returns "" when no signal is present.
func Resolve(r *http.Request) string {
	if r == nil {
		return ""
	}

	// 1) Forwarded chain (prefer the original client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if got := pickFirstPublic(strings.Split(xff, ",")); got != "" {
			return got
		}
	}

	// 2) Single-value proxy headers
	for _, h := range directHeaders {
		if val := r.Header.Get(h); val != "" {
			if ip := Normalize(val); ip != "" {
				return ip
			}
		}
	}

	// 3) Socket address
	if ip := Normalize(r.RemoteAddr); ip != "" {
		return ip
	}

	return ""
}

// pickFirstPublic returns the first candidate classified as public, falling
// back to the first normalized non-empty candidate when none are public.
func pickFirstPublic(candidates []string) string {
	for _, raw := range candidates {
		if ip := Normalize(raw); ip != "" && !IsPrivate(ip) {
			return ip
		}
	}
	for _, raw := range candidates {
		if ip := Normalize(raw); ip != "" {
			return ip
		}
	}
	return ""
}

// Normalize cleans a raw address candidate: surrounding brackets and ports
// are stripped, IPv4-mapped IPv6 addresses are unwrapped to plain IPv4.
// Values that do not parse as an IP are still returned trimmed, so upstream
// precedence rules can fall back to them.
func Normalize(raw string) string {
	ip := strings.TrimSpace(raw)
	if ip == "" {
		return ""
	}

	// [::1]:8080 or [::1]
	if strings.HasPrefix(ip, "[") {
		if end := strings.Index(ip, "]"); end > 0 {
			ip = ip[1:end]
		}
	} else if i := strings.LastIndex(ip, ":"); i > 0 && strings.Count(ip, ":") == 1 {
		// Exactly one colon means IPv4:port; bare IPv6 always has more.
		if _, err := strconv.Atoi(ip[i+1:]); err == nil {
			ip = ip[:i]
		}
	}

	// ::ffff:1.2.3.4 -> 1.2.3.4
	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}

	return ip
}

// IsPrivate reports whether the address falls in a private or reserved range.
// Unparseable input counts as private so it is never preferred as a public
// candidate.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
