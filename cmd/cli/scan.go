package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/dualscan/internal/config"
	"github.com/anstrom/dualscan/internal/errors"
	"github.com/anstrom/dualscan/internal/resolver"
	"github.com/anstrom/dualscan/internal/scanning"
	"github.com/anstrom/dualscan/internal/services"
)

const defaultEndPort = 1024

// scanFlags are the flags shared by scan and watch.
type scanFlags struct {
	start   int
	end     int
	output  string
	noColor bool
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	d := config.Default()

	fs.String("ports", d.Scanning.Ports, "port range to scan: '1-1024' or a single port")
	fs.IntVar(&f.start, "start", scanning.MinPort, "first port of the range")
	fs.IntVar(&f.end, "end", defaultEndPort, "last port of the range")
	fs.Int("workers", d.Scanning.Workers, "maximum probes in flight per protocol")
	fs.Duration("timeout", d.Scanning.Timeout, "TCP connect and UDP reply timeout")
	fs.Duration("banner-timeout", d.Scanning.BannerTimeout, "banner read timeout on open TCP ports (0 disables)")
	fs.Bool("udp-payloads", d.Scanning.UDPPayloads, "send DNS, NTP and SNMP requests to their well-known ports")
	fs.Bool("parallel", d.Scanning.ParallelPhases, "run the TCP and UDP phases concurrently")
	fs.Float64("rate", d.Scanning.RateLimit, "probes per second per protocol (0 = unlimited)")
	fs.String("dns-server", d.Scanning.DNSServer, "resolve the target through this DNS server (host:port)")
	fs.String("services-file", d.Scanning.ServicesFile, "services database (default /etc/services)")
	fs.String("metrics-addr", d.Metrics.ListenAddr, "serve Prometheus metrics on this address")
	fs.StringVarP(&f.output, "output", "o", string(scanning.FormatText), "report format: text, json")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
}

// bindings maps config keys to the flags that override them.
func (f *scanFlags) bindings() map[string]string {
	return map[string]string{
		"scanning.ports":           "ports",
		"scanning.workers":         "workers",
		"scanning.timeout":         "timeout",
		"scanning.banner_timeout":  "banner-timeout",
		"scanning.udp_payloads":    "udp-payloads",
		"scanning.parallel_phases": "parallel",
		"scanning.rate_limit":      "rate",
		"scanning.dns_server":      "dns-server",
		"scanning.services_file":   "services-file",
		"metrics.listen_addr":      "metrics-addr",
	}
}

func rangeFlagsChanged(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("start") || cmd.Flags().Changed("end")
}

// portRange takes --start/--end when either is given, else the configured
// ports (which --ports overrides).
func (f *scanFlags) portRange(cmd *cobra.Command, cfg *config.Config) (scanning.PortRange, error) {
	if rangeFlagsChanged(cmd) {
		return scanning.NewPortRange(f.start, f.end)
	}
	return scanning.ParsePortRange(cfg.Scanning.Ports)
}

func (f *scanFlags) reportOptions(g *globalOptions, cmd *cobra.Command) (scanning.ReportOptions, error) {
	format, err := scanning.ParseOutputFormat(f.output)
	if err != nil {
		return scanning.ReportOptions{}, err
	}
	return scanning.ReportOptions{
		Format: format,
		Color:  !f.noColor && g.terminal(cmd.OutOrStdout()),
	}, nil
}

// newScanner builds a scanner from the merged configuration.
func newScanner(cfg *config.Config, options ...scanning.Option) *scanning.Scanner {
	lookup := services.Lookup
	if cfg.Scanning.ServicesFile != "" {
		lookup = services.LoadOrBuiltin(cfg.Scanning.ServicesFile).Lookup
	}

	base := []scanning.Option{
		scanning.WithResolver(resolver.New(cfg.Scanning.DNSServer, 0)),
		scanning.WithLookup(lookup),
	}
	return scanning.NewScanner(scanning.OptionsFromConfig(&cfg.Scanning), append(base, options...)...)
}

type scanOptions struct {
	scanFlags
	g          *globalOptions
	noProgress bool
}

func newScanCmd(g *globalOptions) *cobra.Command {
	o := &scanOptions{g: g}

	scanCmd := &cobra.Command{
		Use:   "scan [host]",
		Short: "Scan a host's ports over TCP and UDP",
		Long: `Scan every port of a range on one host, first over TCP and then over
UDP, and print the ports that answered on either protocol.

TCP ports are probed with a full connect; a banner is read from open ports.
UDP ports get one datagram: a reply means open, silence means open|filtered
and an ICMP port-unreachable means closed.

When the host is omitted on an interactive terminal, dualscan asks for the
host and the port range.`,
		Example: `  dualscan scan 192.168.1.10
  dualscan scan example.com --ports 1-1024
  dualscan scan 10.0.0.5 --start 20 --end 25 --udp-payloads
  dualscan scan 10.0.0.5 --output json --no-progress
  dualscan scan`,
		Args: cobra.MaximumNArgs(1),
		RunE: o.run,
	}

	o.register(scanCmd.Flags())
	scanCmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "do not print the progress line")
	scanCmd.MarkFlagsMutuallyExclusive("ports", "start")
	scanCmd.MarkFlagsMutuallyExclusive("ports", "end")

	return scanCmd
}

func (o *scanOptions) run(cmd *cobra.Command, args []string) error {
	cfg, err := o.g.setup(cmd, o.bindings())
	if err != nil {
		return err
	}

	reportOpts, err := o.reportOptions(o.g, cmd)
	if err != nil {
		return err
	}

	target, rng, err := o.inputs(cmd, args, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startMetricsListener(ctx, cfg)

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	notices := stdout
	if reportOpts.Format == scanning.FormatJSON {
		notices = stderr
	}

	options := []scanning.Option{
		scanning.WithResolvedHook(func(address string) {
			fmt.Fprintf(notices, "Starting scan on host: %s\n", address)
		}),
	}
	var progress *scanning.ProgressPrinter
	if !o.noProgress && o.g.terminal(stderr) {
		progress = scanning.NewProgressPrinter(stderr)
		options = append(options, scanning.WithProgress(progress.Update))
	}

	report, err := newScanner(cfg, options...).Scan(ctx, target, rng)
	if progress != nil {
		progress.Finish()
	}
	switch {
	case errors.IsCode(err, errors.CodeTargetUnresolvable):
		fmt.Fprintf(stderr, "Unable to resolve host: %s\n", target)
		return &reportedError{err: err}
	case errors.IsFatal(err):
		return err
	case err != nil:
		fmt.Fprintf(stderr, "Scan of %s interrupted\n", target)
		return &reportedError{err: err}
	}

	return scanning.WriteReport(stdout, report, reportOpts)
}

// inputs returns the target and range, prompting for whatever is missing
// when stdin is a terminal.
func (o *scanOptions) inputs(cmd *cobra.Command, args []string, cfg *config.Config) (string, scanning.PortRange, error) {
	if len(args) == 1 && args[0] != "" {
		rng, err := o.portRange(cmd, cfg)
		return args[0], rng, err
	}

	if !o.g.terminal(cmd.InOrStdin()) {
		return "", scanning.PortRange{}, errors.ErrInvalidTarget("", "target host is required")
	}

	p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	target, err := p.ask("Enter your target IP: ")
	if err != nil {
		return "", scanning.PortRange{}, err
	}
	if target == "" {
		return "", scanning.PortRange{}, errors.ErrInvalidTarget("", "target host is required")
	}

	if rangeFlagsChanged(cmd) || cmd.Flags().Changed("ports") {
		rng, err := o.portRange(cmd, cfg)
		return target, rng, err
	}

	start, err := p.askPort("Enter the start port: ")
	if err != nil {
		return "", scanning.PortRange{}, err
	}
	end, err := p.askPort("Enter the end port: ")
	if err != nil {
		return "", scanning.PortRange{}, err
	}

	rng, err := scanning.NewPortRange(start, end)
	return target, rng, err
}
