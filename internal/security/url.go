// Package security holds the checks that keep secrets and writes where
// they belong.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var loopbackCIDRs = mustCIDRs([]string{
	"127.0.0.0/8",
	"::1/128",
})

func mustCIDRs(cidrs []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			out = append(out, block)
		}
	}
	return out
}

// ValidateCredentialURL checks a URL that a bearer credential will be sent
// to. Plain http is only accepted for loopback hosts.
func ValidateCredentialURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("empty url")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if host == "" {
		return fmt.Errorf("url host is required")
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(host) {
			return nil
		}
		return fmt.Errorf("refusing to send credentials over plain http to %s", host)
	default:
		return fmt.Errorf("unsupported url scheme: %s", parsed.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range loopbackCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
