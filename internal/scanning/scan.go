package scanning

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/dualscan/internal/config"
	"github.com/anstrom/dualscan/internal/errors"
	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/metrics"
	"github.com/anstrom/dualscan/internal/resolver"
	"github.com/anstrom/dualscan/internal/services"
	"github.com/anstrom/dualscan/internal/workers"
)

const (
	DefaultWorkers       = config.DefaultWorkers
	DefaultTimeout       = config.DefaultTimeout
	DefaultBannerTimeout = config.DefaultBannerTimeout
)

// Options tunes a Scanner.
type Options struct {
	// Workers is the maximum number of probes in flight per phase.
	Workers int
	// Timeout bounds each TCP connect and each UDP reply wait.
	Timeout time.Duration
	// BannerTimeout bounds the banner read on open TCP ports; 0 disables it.
	BannerTimeout time.Duration
	// UDPPayloads sends protocol-specific datagrams to well-known ports.
	UDPPayloads bool
	// ParallelPhases runs the TCP and UDP phases concurrently.
	ParallelPhases bool
	// RateLimit caps probes started per second in each phase (0 = no limit).
	RateLimit float64
}

// DefaultOptions returns the stock scanner settings.
func DefaultOptions() Options {
	return Options{
		Workers:       DefaultWorkers,
		Timeout:       DefaultTimeout,
		BannerTimeout: DefaultBannerTimeout,
	}
}

// OptionsFromConfig maps the scanning section of the config file.
func OptionsFromConfig(cfg *config.ScanningConfig) Options {
	return Options{
		Workers:        cfg.Workers,
		Timeout:        cfg.Timeout,
		BannerTimeout:  cfg.BannerTimeout,
		UDPPayloads:    cfg.UDPPayloads,
		ParallelPhases: cfg.ParallelPhases,
		RateLimit:      cfg.RateLimit,
	}
}

// Option customizes a Scanner's collaborators.
type Option func(*Scanner)

// WithResolver sets the target resolver.
func WithResolver(r resolver.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithDialer sets the transport used by probes.
func WithDialer(d Dialer) Option {
	return func(s *Scanner) { s.dialer = d }
}

// WithLookup sets the service name lookup.
func WithLookup(lookup services.LookupFunc) Option {
	return func(s *Scanner) { s.lookup = lookup }
}

// WithProgress sets the per-probe progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scanner) { s.progress = fn }
}

// WithPhaseHook registers a callback invoked on every phase transition.
func WithPhaseHook(fn func(Phase)) Option {
	return func(s *Scanner) { s.onPhase = fn }
}

// WithResolvedHook registers a callback invoked with the target's address
// once resolution succeeds and before any probe starts.
func WithResolvedHook(fn func(address string)) Option {
	return func(s *Scanner) { s.onResolved = fn }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// Scanner scans one target at a time.
type Scanner struct {
	opts       Options
	resolver   resolver.Resolver
	dialer     Dialer
	lookup     services.LookupFunc
	progress   ProgressFunc
	onPhase    func(Phase)
	onResolved func(address string)
	metrics    *metrics.PrometheusMetrics
	prober     *Prober

	phase atomic.Int32
}

// NewScanner creates a scanner with the given options.
func NewScanner(opts Options, options ...Option) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	s := &Scanner{
		opts:     opts,
		resolver: resolver.NewSystemResolver(),
		lookup:   services.Lookup,
		metrics:  metrics.GetGlobalMetrics(),
	}
	for _, option := range options {
		option(s)
	}

	s.prober = NewProber(s.dialer, s.lookup, opts)
	s.prober.metrics = s.metrics
	return s
}

// Phase returns the phase of the scan in progress, or of the last scan.
func (s *Scanner) Phase() Phase {
	return Phase(s.phase.Load())
}

// Scan resolves target and probes every port of rng over TCP and UDP.
// Resolution failure is fatal: no probe runs and no report is returned.
func (s *Scanner) Scan(ctx context.Context, target string, rng PortRange) (*Report, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		ID:        uuid.NewString(),
		Target:    target,
		Range:     rng,
		StartTime: time.Now(),
	}
	logger := logging.Default().WithComponent("scanner").WithScanID(report.ID).WithTarget(target)

	s.setPhase(logger, PhaseResolvingTarget)
	phaseStart := time.Now()
	ip, err := s.resolver.Resolve(ctx, target)
	s.metrics.RecordPhaseDuration(PhaseResolvingTarget.String(), time.Since(phaseStart))
	if err != nil {
		s.metrics.IncrementScansTotal("unresolvable")
		logger.WithError(err).Debug("Target resolution failed")
		return nil, errors.ErrTargetUnresolvable(target, err)
	}
	report.Address = ip.String()
	if s.onResolved != nil {
		s.onResolved(report.Address)
	}

	logger.Info("Starting scan",
		"address", report.Address,
		"ports", rng.String(),
		"workers", s.opts.Workers,
		"parallel_phases", s.opts.ParallelPhases)

	ports := rng.Ports()
	var (
		tcp map[int]TCPResult
		udp map[int]UDPResult
	)
	if s.opts.ParallelPhases {
		tcp, udp = s.runParallel(ctx, logger, report.Address, ports)
	} else {
		s.setPhase(logger, PhaseScanningTCP)
		tcp = s.runTCP(ctx, report.Address, ports)
		s.setPhase(logger, PhaseScanningUDP)
		udp = s.runUDP(ctx, report.Address, ports)
	}

	if err := ctx.Err(); err != nil {
		phase := s.Phase().String()
		s.metrics.IncrementScansTotal("canceled")
		logger.WithError(err).Info("Scan canceled", "phase", phase)
		return nil, errors.ErrScanCanceled(target, err).WithOperation(phase)
	}

	s.setPhase(logger, PhaseAggregating)
	report.Rows = Aggregate(rng, tcp, udp, s.lookup)
	report.Complete()

	visible := len(report.Visible())
	s.metrics.SetPortsVisible(visible)
	s.metrics.IncrementScansTotal("success")
	s.setPhase(logger, PhaseDone)

	logger.Info("Scan completed",
		"duration", report.Duration,
		"ports_scanned", len(report.Rows),
		"ports_visible", visible)

	return report, nil
}

func (s *Scanner) runParallel(ctx context.Context, logger *logging.Logger, address string,
	ports []int) (map[int]TCPResult, map[int]UDPResult) {
	var (
		wg  sync.WaitGroup
		tcp map[int]TCPResult
		udp map[int]UDPResult
	)

	s.setPhase(logger, PhaseScanningTCP)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tcp = s.runTCP(ctx, address, ports)
	}()
	s.setPhase(logger, PhaseScanningUDP)
	go func() {
		defer wg.Done()
		udp = s.runUDP(ctx, address, ports)
	}()
	wg.Wait()

	return tcp, udp
}

func (s *Scanner) runTCP(ctx context.Context, address string, ports []int) map[int]TCPResult {
	start := time.Now()
	defer func() { s.metrics.RecordPhaseDuration(PhaseScanningTCP.String(), time.Since(start)) }()

	pool := workers.New(s.poolConfig(protoTCP),
		func(ctx context.Context, port int) TCPResult {
			return s.prober.ProbeTCP(ctx, address, port)
		},
		func(port int) TCPResult {
			return TCPResult{Port: port}
		})
	return pool.Run(ctx, ports, s.progressFor(protoTCP))
}

func (s *Scanner) runUDP(ctx context.Context, address string, ports []int) map[int]UDPResult {
	start := time.Now()
	defer func() { s.metrics.RecordPhaseDuration(PhaseScanningUDP.String(), time.Since(start)) }()

	pool := workers.New(s.poolConfig(protoUDP),
		func(ctx context.Context, port int) UDPResult {
			return s.prober.ProbeUDP(ctx, address, port)
		},
		func(port int) UDPResult {
			return UDPResult{Port: port, State: UDPClosed}
		})
	return pool.Run(ctx, ports, s.progressFor(protoUDP))
}

func (s *Scanner) poolConfig(name string) workers.Config {
	return workers.Config{
		Name:      name,
		Size:      s.opts.Workers,
		RateLimit: s.opts.RateLimit,
	}
}

func (s *Scanner) progressFor(protocol string) workers.ProgressFunc {
	if s.progress == nil {
		return nil
	}
	return func(done, total int) {
		s.progress(protocol, done, total)
	}
}

func (s *Scanner) setPhase(logger *logging.Logger, phase Phase) {
	s.phase.Store(int32(phase))
	logger.Debug("Scan phase changed", "phase", phase.String())
	if s.onPhase != nil {
		s.onPhase(phase)
	}
}
