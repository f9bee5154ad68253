package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP_PrefersCDNHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("CF-Connecting-IP", "203.0.113.9")
	r.Header.Set("X-Forwarded-For", "198.51.100.7")
	r.RemoteAddr = "10.0.0.1:4567"

	assert.Equal(t, "203.0.113.9", ExtractClientIP(r))
}

func TestExtractClientIP_ForwardedForChainTakesFirstValid(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "garbage, 198.51.100.7, 10.0.0.1")

	assert.Equal(t, "198.51.100.7", ExtractClientIP(r))
}

func TestExtractClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.7:61234"

	assert.Equal(t, "198.51.100.7", ExtractClientIP(r))
}

func TestExtractClientIP_InvalidHeaderFallsThrough(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "not-an-ip")
	r.RemoteAddr = "198.51.100.7:61234"

	assert.Equal(t, "198.51.100.7", ExtractClientIP(r))
}

func TestExtractClientIP_NothingValidGivesSentinel(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "garbage")
	r.RemoteAddr = "also-garbage"

	assert.Equal(t, UnknownIP, ExtractClientIP(r))
}

func TestExtractClientIP_IPv6(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "2001:db8::1")

	assert.Equal(t, "2001:db8::1", ExtractClientIP(r))
}

func TestIsSecureRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.False(t, IsSecureRequest(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecureRequest(r))

	r.Header.Set("X-Forwarded-Proto", "HTTPS")
	assert.True(t, IsSecureRequest(r))

	secure := httptest.NewRequest("GET", "https://example.com/", nil)
	assert.True(t, IsSecureRequest(secure))
}
