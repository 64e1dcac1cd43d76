// Package resolver turns a target host into the single address a scan
// probes. Literal addresses are returned as-is; names go either through the
// system resolver or, when a server is configured, through direct DNS
// queries. IPv4 answers are preferred over IPv6.
package resolver

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks github.com/anstrom/dualscan/internal/resolver Resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const defaultQueryTimeout = 5 * time.Second

// Resolver resolves a host name or literal address to an IP.
type Resolver interface {
	Resolve(ctx context.Context, host string) (net.IP, error)
}

// New returns a DNS resolver for server, or the system resolver when server
// is empty.
func New(server string, timeout time.Duration) Resolver {
	if server == "" {
		return NewSystemResolver()
	}
	return NewDNSResolver(server, timeout)
}

// SystemResolver uses the platform resolver (hosts file, nsswitch, DNS).
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver creates a resolver backed by net.DefaultResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// Resolve implements Resolver.
func (r *SystemResolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := parseLiteral(host); ip != nil {
		return ip, nil
	}
	if host == "" {
		return nil, fmt.Errorf("empty host")
	}

	addrs, err := r.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return pickPreferredIP(host, ips)
}

// DNSResolver queries a specific DNS server for A, then AAAA records.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver creates a resolver that queries server ("host:port").
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Server returns the configured DNS server address.
func (r *DNSResolver) Server() string {
	return r.server
}

// Resolve implements Resolver.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := parseLiteral(host); ip != nil {
		return ip, nil
	}
	if host == "" {
		return nil, fmt.Errorf("empty host")
	}

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ips, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ips) > 0 {
			return ips[0], nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no addresses found for %q", host)
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s via %s: %w", dns.TypeToString[qtype], host, r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s %s via %s: %s", dns.TypeToString[qtype], host, r.server, dns.RcodeToString[resp.Rcode])
	}
	return extractIPs(resp.Answer), nil
}

// extractIPs collects A and AAAA answers in order, following no CNAMEs
// beyond what the server already expanded into the answer section.
func extractIPs(answers []dns.RR) []net.IP {
	var ips []net.IP
	for _, rr := range answers {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A)
		case *dns.AAAA:
			ips = append(ips, v.AAAA)
		}
	}
	return ips
}

func parseLiteral(host string) net.IP {
	return net.ParseIP(strings.Trim(host, "[]"))
}

// pickPreferredIP selects an IPv4 address if available, otherwise the first IP.
func pickPreferredIP(host string, ips []net.IP) (net.IP, error) {
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %q", host)
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
