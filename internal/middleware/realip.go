package middleware

import (
	"net"
	"net/http"
	"strings"
)

// proxySet holds the addresses allowed to speak for the client through
// forwarding headers.
type proxySet struct {
	nets []*net.IPNet
	ips  []net.IP
}

func newProxySet(entries []string) proxySet {
	var set proxySet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			set.nets = append(set.nets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			set.ips = append(set.ips, ip)
		}
	}
	return set
}

func (s proxySet) contains(addr string) bool {
	if len(s.nets) == 0 && len(s.ips) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range s.nets {
		if network.Contains(ip) {
			return true
		}
	}
	for _, trusted := range s.ips {
		if trusted.Equal(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the originating address and stamps it on X-Real-IP for
// the rest of the chain (rate limiting, security logging). Forwarding
// headers are believed only when the direct peer is a configured proxy;
// anyone else gets their socket address, spoofed headers included.
func ClientIP(trustedProxies []string) func(http.Handler) http.Handler {
	trusted := newProxySet(trustedProxies)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := resolveClientIP(r, trusted); ip != "" {
				r.Header.Set("X-Real-IP", ip)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveClientIP(r *http.Request, trusted proxySet) string {
	peer := peerAddr(r.RemoteAddr)
	if !trusted.contains(peer) {
		return peer
	}

	// Cloudflare sets exactly one client address.
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	// The first hop in X-Forwarded-For is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return peer
}

// peerAddr strips the port from a socket address, tolerating bare IPs.
func peerAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
