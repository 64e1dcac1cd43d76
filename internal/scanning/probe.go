package scanning

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/metrics"
	"github.com/anstrom/dualscan/internal/services"
)

const udpReadBufferSize = 1024

// Dialer opens connections for probes. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober runs single-port, single-protocol checks. Probes never return
// errors: every failure is folded into the outcome.
type Prober struct {
	dialer        Dialer
	timeout       time.Duration
	bannerTimeout time.Duration
	udpPayloads   bool
	lookup        services.LookupFunc
	metrics       *metrics.PrometheusMetrics
	logger        *logging.Logger
}

// NewProber creates a prober. A nil dialer uses *net.Dialer and a nil lookup
// uses the default services database.
func NewProber(dialer Dialer, lookup services.LookupFunc, opts Options) *Prober {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if lookup == nil {
		lookup = services.Lookup
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		dialer:        dialer,
		timeout:       timeout,
		bannerTimeout: opts.BannerTimeout,
		udpPayloads:   opts.UDPPayloads,
		lookup:        lookup,
		metrics:       metrics.GetGlobalMetrics(),
		logger:        logging.Default().WithComponent("probe"),
	}
}

// ProbeTCP attempts one connection to address:port. On success it looks up
// the service name and reads a banner on the same connection.
func (p *Prober) ProbeTCP(ctx context.Context, address string, port int) TCPResult {
	start := time.Now()
	p.metrics.ProbeStarted(protoTCP)
	defer p.metrics.ProbeFinished(protoTCP)

	result := TCPResult{Port: port}

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	conn, err := p.dialer.DialContext(dialCtx, protoTCP, net.JoinHostPort(address, strconv.Itoa(port)))
	cancel()
	if err != nil {
		p.finish(protoTCP, port, "closed", start, err)
		return result
	}
	defer func() { _ = conn.Close() }()

	result.Open = true
	if name, ok := p.lookup(port, protoTCP); ok {
		result.Service = name
	}
	result.Banner = ReadBanner(ctx, conn, p.bannerTimeout)

	p.finish(protoTCP, port, "open", start, nil, "banner_bytes", len(result.Banner))
	return result
}

// ProbeUDP sends one datagram to address:port and waits for any reply.
func (p *Prober) ProbeUDP(ctx context.Context, address string, port int) UDPResult {
	start := time.Now()
	p.metrics.ProbeStarted(protoUDP)
	defer p.metrics.ProbeFinished(protoUDP)

	state, err := p.udpExchange(ctx, address, port)
	if ctx.Err() != nil {
		state = UDPClosed
	}
	p.finish(protoUDP, port, state.String(), start, err)
	return UDPResult{Port: port, State: state}
}

func (p *Prober) udpExchange(ctx context.Context, address string, port int) (UDPState, error) {
	conn, err := p.dialer.DialContext(ctx, protoUDP, net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return UDPClosed, err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(p.timeout)); err != nil {
		return UDPClosed, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	var payload []byte
	if p.udpPayloads {
		payload = UDPPayload(port)
	}
	if _, err := conn.Write(payload); err != nil {
		return classifyUDPError(err), err
	}

	buf := make([]byte, udpReadBufferSize)
	if _, err := conn.Read(buf); err != nil {
		return classifyUDPError(err), err
	}
	return UDPOpen, nil
}

// classifyUDPError maps a send/receive error to a UDP state. Only a timeout
// is ambiguous; anything else (usually ECONNREFUSED) is a definite close.
func classifyUDPError(err error) UDPState {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return UDPOpenOrFiltered
	}
	return UDPClosed
}

func (p *Prober) finish(protocol string, port int, outcome string, start time.Time, err error, fields ...any) {
	p.metrics.RecordProbe(protocol, outcome, time.Since(start))
	logger := p.logger
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.DebugProbe(protocol, port, outcome, fields...)
}
