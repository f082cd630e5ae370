package httputil

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			expected:   "203.0.113.9",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"},
			expected:   "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			expected:   "203.0.113.9",
		},
		{
			name:       "remote addr fallback",
			remoteAddr: "203.0.113.9:1234",
			expected:   "203.0.113.9",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:1234",
			expected:   "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(r))
		})
	}
}

func TestPeerIP(t *testing.T) {
	assert.Equal(t, "unknown", PeerIP(nil))

	tcp := &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 2525}
	assert.Equal(t, "203.0.113.9", PeerIP(tcp))

	tcp6 := &net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 2525}
	assert.Equal(t, "2001:db8::1", PeerIP(tcp6))
}
