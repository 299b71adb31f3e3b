// Package util holds host helpers shared by detection and reporting.
package util

import (
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// unspecifiedNet covers "this network" addresses that netip does not classify.
var unspecifiedNet = netip.MustParsePrefix("0.0.0.0/8")

// Authority returns the lowercased host[:port] of rawURL, or "" when it
// cannot be parsed. Two URLs share an origin when their authorities match.
func Authority(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsInternalHost reports whether host names a loopback, private, link-local
// or local-only destination. Brackets around IPv6 literals are accepted.
func IsInternalHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	switch {
	case host == "localhost",
		strings.HasSuffix(host, ".localhost"),
		strings.HasSuffix(host, ".internal"):
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified() ||
		unspecifiedNet.Contains(addr)
}

// RegistrableDomain returns the eTLD+1 for the URL host. IP literals and
// hosts without a registrable suffix are returned as-is.
func RegistrableDomain(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return host
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
