package security

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/clawdesk/clawdesk/internal/config"
)

// AllowedOrigins returns the browser origins permitted to call the API:
// the app's own loopback origins plus security.allowedOrigins.
func AllowedOrigins(cfg *config.Config) map[string]bool {
	port := strconv.Itoa(cfg.App.Port)
	set := map[string]bool{
		"http://127.0.0.1:" + port: true,
		"http://localhost:" + port: true,
		"http://[::1]:" + port:     true,
	}
	if h := cfg.App.Host; h != "" {
		set["http://"+net.JoinHostPort(h, port)] = true
	}
	for _, o := range cfg.Security.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			set[o] = true
		}
	}
	return set
}

// IsLoopbackRequestHost reports whether a Host header names a loopback
// address. It rejects DNS-rebinding requests that reach the listener
// under a foreign hostname.
func IsLoopbackRequestHost(hostHeader string) bool {
	if hostHeader == "" {
		return false
	}
	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	} else if u, err := url.Parse("http://" + hostHeader); err == nil {
		host = u.Hostname()
	}
	return config.IsLoopbackHost(strings.Trim(host, "[]"))
}
