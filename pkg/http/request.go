package http

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIP is the sentinel used when no candidate validates as an IP address.
// Rate limiting still applies to it, so header-mangling clients share a bucket.
const UnknownIP = "0.0.0.0"

// ipHeaders are checked in order of preference. CDN and reverse-proxy headers
// come first; RemoteAddr is the final fallback.
var ipHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// ExtractClientIP derives the client IP for rate limiting and audit logging.
// Proxy-forwarded headers are preferred, each candidate is validated as a
// syntactically correct IP, and UnknownIP is returned if nothing validates.
func ExtractClientIP(r *http.Request) string {
	for _, header := range ipHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the first entry is the client
		for _, candidate := range strings.Split(value, ",") {
			candidate = strings.TrimSpace(candidate)
			if isValidIP(candidate) {
				return candidate
			}
		}
	}

	if ip := remoteAddr(r); isValidIP(ip) {
		return ip
	}

	return UnknownIP
}

// remoteAddr strips the port from RemoteAddr if present
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// IsSecureRequest reports whether the request arrived over an encrypted
// channel, either directly or via a TLS-terminating proxy. The session
// cookie's Secure flag mirrors this.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
