package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// publicDNS are servers to be queried if a local lookup fails.
// These are well-known, high-availability public DNS providers.
var publicDNS = []string{
	"1.1.1.1:53",                // Cloudflare
	"1.0.0.1:53",                // Cloudflare
	"[2606:4700:4700::1111]:53", // Cloudflare
	"8.8.8.8:53",                // Google
	"8.8.4.4:53",                // Google
	"[2001:4860:4860::8888]:53", // Google
	"9.9.9.9:53",                // Quad9
	"149.112.112.112:53",        // Quad9
	"208.67.222.222:53",         // Cisco OpenDNS
	"208.67.220.220:53",         // Cisco OpenDNS
}

var ErrNotFound = errors.New("no addresses found")

// Resolver looks a host up with the system resolver first and races public servers if that fails.
type Resolver struct {
	// Servers are host:port pairs queried directly on fallback.
	Servers []string

	LocalTimeout  time.Duration
	RemoteTimeout time.Duration

	// SkipLocal goes straight to Servers.
	SkipLocal bool
}

func NewResolver() *Resolver {
	return &Resolver{
		Servers:       publicDNS,
		LocalTimeout:  time.Second,
		RemoteTimeout: 2 * time.Second,
	}
}

// Lookup resolves a hostname to an IP address, preferring IPv4. Literal IPs are returned as is.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	if !r.SkipLocal {
		if ip, err := r.localLookup(ctx, host); err == nil {
			return ip, nil
		}
	}
	return r.remoteLookupWithRace(ctx, host)
}

func (r *Resolver) localLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

// remoteLookupWithRace returns the first answer from any of the configured servers.
func (r *Resolver) remoteLookupWithRace(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := queryServer(ctx, host, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	var lastErr error
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			lastErr = res.err
		case <-ctx.Done():
			return "", fmt.Errorf("dns lookup of %s timed out: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("failed to resolve %s on %d servers: %w", host, len(r.Servers), lastErr)
}

// queryServer asks one server for A records, then AAAA.
func queryServer(ctx context.Context, host, server string) (string, error) {
	client := &dns.Client{}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, m, server)
		if err != nil {
			return "", err
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
		}

		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				return rec.A.String(), nil
			case *dns.AAAA:
				return rec.AAAA.String(), nil
			}
		}
	}
	return "", ErrNotFound
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNotFound
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// DialContext dials addr after resolving its host with the resolver.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}
