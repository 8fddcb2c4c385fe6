// Package clientid derives stable rate limit identifiers from request metadata.
package clientid

import (
	"net"
	"net/netip"
	"strings"
	"unicode"
)

const (
	// Unknown is returned when no client address or identifier part can be trusted.
	Unknown = "unknown"

	// Separator joins the parts of a compound identifier.
	Separator = ":"

	// MaxPartLength bounds each part of a compound identifier.
	MaxPartLength = 128
)

// DefaultHeaders lists the proxy headers consulted for the client address, in priority order:
// the trusted forwarding header, the secondary proxy header and the CDN header.
var DefaultHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// HeaderFunc returns the value of a request header.
type HeaderFunc func(name string) string

// ValidIP reports whether s is a syntactically valid IPv4 or IPv6 address without a zone.
// Compressed IPv6 and IPv4-mapped IPv6 forms are accepted.
func ValidIP(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}

	return addr.Zone() == ""
}

// Resolver picks the client address out of request headers.
type Resolver struct {
	headers []string
}

// NewResolver creates a resolver that consults headers in order.
// With no headers it uses DefaultHeaders.
func NewResolver(headers ...string) *Resolver {
	if len(headers) == 0 {
		headers = DefaultHeaders
	}

	return &Resolver{headers: headers}
}

// ClientIP returns the first valid address from the configured headers, then from remoteAddr.
// It returns Unknown when no candidate validates.
func (r *Resolver) ClientIP(header HeaderFunc, remoteAddr string) string {
	for _, name := range r.headers {
		if ip := firstValid(header(name)); ip != "" {
			return ip
		}
	}

	if ip := hostOnly(remoteAddr); ValidIP(ip) {
		return ip
	}

	return Unknown
}

// FromHeaders resolves the client address using DefaultHeaders.
func FromHeaders(header HeaderFunc, remoteAddr string) string {
	return NewResolver().ClientIP(header, remoteAddr)
}

// firstValid returns the first entry of a comma separated header value.
// Only the first entry is considered: later entries were appended by proxies.
func firstValid(value string) string {
	if value == "" {
		return ""
	}

	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)

	if ValidIP(first) {
		return first
	}

	return ""
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}

	return host
}

// Truncate strips control characters and surrounding space from s and caps it at maxLen bytes
// without splitting a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}

		return r
	}, s))

	if len(s) <= maxLen {
		return s
	}

	cut := 0

	for i := range s {
		if i > maxLen {
			break
		}

		cut = i
	}

	return s[:cut]
}

// Sanitize bounds a single identifier part. Empty parts become Unknown.
func Sanitize(part string) string {
	part = Truncate(part, MaxPartLength)
	if part == "" {
		return Unknown
	}

	return part
}

// Compound joins sanitized parts with Separator, e.g. "export:orders:shop-a".
func Compound(parts ...string) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = Sanitize(p)
	}

	return strings.Join(clean, Separator)
}
