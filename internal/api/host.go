package api

import (
	"net"
	"net/url"
	"strings"

	"github.com/phrazzld/portal-client/internal/config"
)

// HostResolver yields the API base URL (scheme, host and "/api" root, no
// trailing slash). It is consulted on every request so that it may change
// at runtime.
type HostResolver interface {
	BaseURL() string
}

// StaticHost is a fixed base URL, e.g. "https://portal.example.org/api".
type StaticHost string

func (h StaticHost) BaseURL() string { return strings.TrimRight(string(h), "/") }

// devPorts are the front-end development server ports whose API lives on
// port 8000 of the same host.
var devPorts = map[string]bool{"5173": true, "4173": true}

// OriginHost derives the API location from the origin the client is served
// from: local development origins map to http://<host>:8000/api, anything
// else to <scheme>://<host>/api.
type OriginHost struct {
	Origin string
}

func (h OriginHost) BaseURL() string {
	u, err := url.Parse(h.Origin)
	if err != nil || u.Host == "" {
		return "/api"
	}
	hostname, port := u.Hostname(), u.Port()
	if devPorts[port] || IsLocalHost(hostname) {
		return "http://" + net.JoinHostPort(hostname, "8000") + "/api"
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/api"
}

// IsLocalHost reports whether hostname refers to the local machine.
func IsLocalHost(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ResolverFromConfig prefers an explicit base URL over origin mapping.
func ResolverFromConfig(cfg config.APIConfig) HostResolver {
	if cfg.BaseURL != "" {
		return StaticHost(cfg.BaseURL)
	}
	return OriginHost{Origin: cfg.Origin}
}
