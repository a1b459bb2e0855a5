package client

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// Rewriter translates download URLs that point at a loopback or
// wildcard address into ones the download client can reach. Indexer
// proxies often hand back links built from their own bind address,
// which is useless when the client runs on another machine.
type Rewriter struct {
	host string
	log  *slog.Logger
}

// NewRewriter creates a rewriter targeting the given reachable host.
// Host may include a port; an empty host disables rewriting.
func NewRewriter(host string, log *slog.Logger) *Rewriter {
	if log == nil {
		log = slog.Default()
	}
	return &Rewriter{host: host, log: log.With("component", "rewrite")}
}

// Rewrite returns the URL with any local host replaced. Non-local and
// unparseable URLs pass through unchanged, as do magnet links.
func (r *Rewriter) Rewrite(rawURL string) string {
	if r.host == "" || strings.HasPrefix(rawURL, "magnet:") {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if !isLocalHost(u.Hostname()) {
		return rawURL
	}

	newHost := r.host
	// Keep the original port unless the target host carries its own.
	if _, _, err := net.SplitHostPort(newHost); err != nil {
		if port := u.Port(); port != "" {
			newHost = net.JoinHostPort(newHost, port)
		}
	}

	old := u.Host
	u.Host = newHost
	r.log.Debug("rewrote local url", "from", old, "to", u.Host)
	return u.String()
}

func isLocalHost(hostname string) bool {
	if hostname == "localhost" || hostname == "" {
		return true
	}
	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified()
}
