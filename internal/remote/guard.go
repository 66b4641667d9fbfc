package remote

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrForbiddenHost is returned when the guard refuses an outbound host.
var ErrForbiddenHost = errors.New("host not allowed")

// Guard decides whether an outbound request to host (which may carry a
// port) is permitted. Every fetch passes through it.
type Guard func(host string) error

// AllowHosts permits exactly the listed hosts. An entry matches either the
// bare hostname or host:port.
func AllowHosts(hosts []string) Guard {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = true
	}
	return func(host string) error {
		host = strings.ToLower(host)
		if allowed[host] || allowed[hostname(host)] {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
	}
}

// PublicHosts refuses loopback, private, link-local and unspecified
// addresses as well as localhost names. Hostnames are not resolved.
func PublicHosts(host string) error {
	name := strings.TrimSuffix(hostname(strings.ToLower(host)), ".")
	if name == "" || name == "localhost" || strings.HasSuffix(name, ".localhost") ||
		strings.HasSuffix(name, ".local") || strings.HasSuffix(name, ".internal") {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
	}
	if addr, err := netip.ParseAddr(name); err == nil {
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() || addr.IsMulticast() {
			return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
		}
	}
	return nil
}

// GuardFromList returns AllowHosts when hosts is non-empty and PublicHosts
// otherwise.
func GuardFromList(hosts []string) Guard {
	if len(hosts) > 0 {
		return AllowHosts(hosts)
	}
	return PublicHosts
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}
