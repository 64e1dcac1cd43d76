package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer serves a fixed zone on a loopback UDP socket.
func startDNSServer(t *testing.T, records map[string][]dns.RR) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		found := false
		for _, rr := range records[q.Name] {
			found = true
			if rr.Header().Rrtype == q.Qtype {
				resp.Answer = append(resp.Answer, rr)
			}
		}
		if !found {
			resp.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestLiteralAddressesShortCircuit(t *testing.T) {
	resolvers := map[string]Resolver{
		"system": NewSystemResolver(),
		// Unroutable server: any query would fail.
		"dns": NewDNSResolver("192.0.2.1:53", 10*time.Millisecond),
	}

	for name, r := range resolvers {
		t.Run(name, func(t *testing.T) {
			ip, err := r.Resolve(context.Background(), "127.0.0.1")
			require.NoError(t, err)
			assert.Equal(t, "127.0.0.1", ip.String())

			ip, err = r.Resolve(context.Background(), "[::1]")
			require.NoError(t, err)
			assert.Equal(t, "::1", ip.String())
		})
	}
}

func TestEmptyHost(t *testing.T) {
	_, err := NewSystemResolver().Resolve(context.Background(), "")
	assert.Error(t, err)

	_, err = NewDNSResolver("127.0.0.1:53", time.Second).Resolve(context.Background(), "")
	assert.Error(t, err)
}

func TestSystemResolverLocalhost(t *testing.T) {
	ip, err := NewSystemResolver().Resolve(context.Background(), "localhost")
	require.NoError(t, err)
	assert.True(t, ip.IsLoopback())
}

func TestSystemResolverInvalidName(t *testing.T) {
	_, err := NewSystemResolver().Resolve(context.Background(), "no-such-host.invalid")
	assert.Error(t, err)
}

func TestDNSResolver(t *testing.T) {
	addr := startDNSServer(t, map[string][]dns.RR{
		"both.example.": {
			mustRR(t, "both.example. 60 IN AAAA 2001:db8::1"),
			mustRR(t, "both.example. 60 IN A 192.0.2.10"),
		},
		"v6only.example.": {
			mustRR(t, "v6only.example. 60 IN AAAA 2001:db8::2"),
		},
	})
	r := NewDNSResolver(addr, time.Second)
	assert.Equal(t, addr, r.Server())

	t.Run("prefers ipv4", func(t *testing.T) {
		ip, err := r.Resolve(context.Background(), "both.example")
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.10", ip.String())
	})

	t.Run("falls back to ipv6", func(t *testing.T) {
		ip, err := r.Resolve(context.Background(), "v6only.example")
		require.NoError(t, err)
		assert.Equal(t, "2001:db8::2", ip.String())
	})

	t.Run("nxdomain", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "missing.example")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NXDOMAIN")
	})
}

func TestNewSelectsImplementation(t *testing.T) {
	_, ok := New("", 0).(*SystemResolver)
	assert.True(t, ok)

	r, ok := New("127.0.0.1:5353", 0).(*DNSResolver)
	require.True(t, ok)
	assert.Equal(t, defaultQueryTimeout, r.client.Timeout)
}

func TestPickPreferredIP(t *testing.T) {
	_, err := pickPreferredIP("x", nil)
	assert.Error(t, err)

	ip, err := pickPreferredIP("x", []net.IP{net.ParseIP("::1"), net.ParseIP("10.0.0.1")})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", ip.String())

	ip, err = pickPreferredIP("x", []net.IP{net.ParseIP("::1")})
	require.NoError(t, err)
	assert.Equal(t, "::1", ip.String())
}
