package clientid_test

import (
	"strings"
	"testing"

	"github.com/serroba/quota-guard/internal/clientid"
	"github.com/stretchr/testify/assert"
)

func headers(values map[string]string) clientid.HeaderFunc {
	return func(name string) string { return values[name] }
}

func TestValidIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{in: "192.168.1.1", want: true},
		{in: "256.1.1.1", want: false},
		{in: "::1", want: true},
		{in: "::ffff:10.0.0.1", want: true},
		{in: "2001:db8::8a2e:370:7334", want: true},
		{in: "not-an-ip", want: false},
		{in: "", want: false},
		{in: "10.0.0", want: false},
		{in: "fe80::1%eth0", want: false},
		{in: "192.168.1.1:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, clientid.ValidIP(tt.in))
		})
	}
}

func TestFromHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:    "first X-Forwarded-For entry wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18", "X-Real-IP": "10.0.0.1"},
			want:    "203.0.113.195",
		},
		{
			name:    "invalid forwarded value falls through to X-Real-IP",
			headers: map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "10.0.0.1"},
			want:    "10.0.0.1",
		},
		{
			name:    "CDN header is last",
			headers: map[string]string{"CF-Connecting-IP": "2001:db8::1"},
			want:    "2001:db8::1",
		},
		{
			name:       "remote address when no header validates",
			headers:    map[string]string{"X-Real-IP": "999.1.1.1"},
			remoteAddr: "192.0.2.10:4431",
			want:       "192.0.2.10",
		},
		{
			name:       "bracketed IPv6 remote address",
			remoteAddr: "[::1]:8080",
			want:       "::1",
		},
		{
			name:       "unknown when nothing validates",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			remoteAddr: "pipe",
			want:       clientid.Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, clientid.FromHeaders(headers(tt.headers), tt.remoteAddr))
		})
	}
}

func TestResolver_CustomHeaders(t *testing.T) {
	r := clientid.NewResolver("Fly-Client-IP")

	got := r.ClientIP(headers(map[string]string{
		"X-Forwarded-For": "203.0.113.1",
		"Fly-Client-IP":   "198.51.100.2",
	}), "")

	assert.Equal(t, "198.51.100.2", got)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	t.Run("empty becomes unknown", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, clientid.Unknown, clientid.Sanitize("   "))
	})

	t.Run("strips control characters", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "shop-aevil", clientid.Sanitize("shop-a\r\nevil"))
	})

	t.Run("truncates long parts", func(t *testing.T) {
		t.Parallel()

		assert.Len(t, clientid.Sanitize(strings.Repeat("x", 500)), clientid.MaxPartLength)
	})

	t.Run("does not split multi-byte characters", func(t *testing.T) {
		t.Parallel()

		got := clientid.Truncate("ab€", 3)

		assert.Equal(t, "ab", got)
	})
}

func TestCompound(t *testing.T) {
	assert.Equal(t, "export:orders:shop-a", clientid.Compound("export", "orders", "shop-a"))
	assert.Equal(t, "export:unknown", clientid.Compound("export", ""))
}
