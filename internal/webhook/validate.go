package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

var ErrURLNotAllowed = errors.New("webhook URL not allowed")

var blockedNets = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10", // CGNAT
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// BlockedIP reports whether ip is loopback, private, link-local, CGNAT or
// otherwise not publicly routable.
func BlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Validator checks webhook target URLs.
type Validator struct {
	Production bool
	Resolver   Resolver
}

func NewValidator(production bool) *Validator {
	return &Validator{Production: production, Resolver: net.DefaultResolver}
}

// Validate rejects non-http(s) schemes, plain http in production, embedded
// credentials and hosts that are or resolve to blocked addresses. Rejections
// wrap ErrURLNotAllowed; resolver failures do not.
func (v *Validator) Validate(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if v.Production {
			return fmt.Errorf("%w: https is required", ErrURLNotAllowed)
		}
	default:
		return fmt.Errorf("%w: scheme %q", ErrURLNotAllowed, u.Scheme)
	}

	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrURLNotAllowed)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrURLNotAllowed)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", ErrURLNotAllowed, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if BlockedIP(ip) {
			return fmt.Errorf("%w: address %s", ErrURLNotAllowed, ip)
		}
		return nil
	}

	addrs, err := v.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if BlockedIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrURLNotAllowed, host, a.IP)
		}
	}
	return nil
}

// NewHTTPClient returns a client that refuses to connect to blocked
// addresses after DNS resolution and does not follow redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil || BlockedIP(ip) {
				return fmt.Errorf("%w: dial %s", ErrURLNotAllowed, host)
			}
			return nil
		},
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          50,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
