// Package urlguard implements the webhook URL guard of spec.md §4.K: a
// create-time check rejecting schemes other than http/https, "localhost",
// literal RFC 1918 and loopback IPv4 addresses, and the platform's own
// domains. Hostnames are not resolved, so a name that resolves to a private
// address is not rejected.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/R3E-Network/automation-core/internal/apperr"
)

var privateRanges = func() []*net.IPNet {
	cidrs := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}()

// Guard validates a candidate webhook URL against the platform's own
// registered domains (ownDomains, from SecurityConfig.AllowedDomains used
// here as a block-list, per the recorded Open Question decision).
type Guard struct {
	ownDomains map[string]struct{}
}

// New builds a Guard rejecting ownDomains in addition to the fixed
// private/loopback ranges.
func New(ownDomains []string) *Guard {
	set := make(map[string]struct{}, len(ownDomains))
	for _, d := range ownDomains {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Guard{ownDomains: set}
}

// Check implements spec.md §4.K's URL guard. It does not perform DNS
// resolution — only literal IP hosts and the platform's own hostnames are
// checked (recorded Open Question: DNS-resolved-private-host tightening is
// explicitly not implemented).
func (g *Guard) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperr.New(apperr.KindValidation, "malformed webhook URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("webhook URL scheme %q is not allowed", u.Scheme))
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return apperr.New(apperr.KindValidation, "webhook URL has no host")
	}
	if host == "localhost" {
		return apperr.New(apperr.KindValidation, "webhook URL must not target localhost")
	}
	if _, blocked := g.ownDomains[host]; blocked {
		return apperr.New(apperr.KindValidation, "webhook URL must not target the platform's own domain")
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, r := range privateRanges {
			if r.Contains(ip) {
				return apperr.New(apperr.KindValidation, "webhook URL must not target a private or loopback address")
			}
		}
	}
	return nil
}
