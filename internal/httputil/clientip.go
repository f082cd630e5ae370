package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP from the request.
// It checks X-Forwarded-For first (taking the first IP in the chain),
// then X-Real-IP, and finally falls back to RemoteAddr.
// Properly handles IPv6 addresses including bracketed notation.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// PeerIP returns the host portion of a network address, for rate limit keys.
func PeerIP(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
