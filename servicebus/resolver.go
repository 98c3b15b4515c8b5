package servicebus

import (
	"fmt"
	"net"
	"net/url"

	"github.com/GoCodeAlone/simnode"
)

// HostNameResolver converts a host name inside a discovered URL to a
// numeric address before the event is published to update sinks. The
// resolver is injectable so discovery can be tested without DNS.
type HostNameResolver interface {
	Resolve(host string) (string, error)
}

// NetResolver resolves through the system resolver.
type NetResolver struct{}

func (NetResolver) Resolve(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("resolving host %q: %w", host, simnode.ErrNotFound)
	}
	return addrs[0], nil
}

// resolveHostURL rewrites the host part of rawURL to a numeric address.
// On resolution failure the URL is returned unchanged.
func resolveHostURL(resolver HostNameResolver, rawURL string) string {
	if resolver == nil {
		return rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return rawURL
	}
	addr, err := resolver.Resolve(parsed.Hostname())
	if err != nil {
		return rawURL
	}
	if parsed.Port() != "" {
		parsed.Host = net.JoinHostPort(addr, parsed.Port())
	} else {
		parsed.Host = addr
	}
	return parsed.String()
}
