// Package cli provides the command-line interface for dualscan.
// It implements the Cobra command tree: one-shot scans, scheduled re-scans,
// service name lookups and version information.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/dualscan/internal/api"
	"github.com/anstrom/dualscan/internal/config"
	"github.com/anstrom/dualscan/internal/errors"
	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/metrics"
)

const (
	envPrefix              = "DUALSCAN"
	metricsRefreshInterval = 15 * time.Second
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// globalOptions holds state shared by every command of one command tree.
type globalOptions struct {
	cfgFile string
	verbose bool
	v       *viper.Viper

	// terminal reports whether a stream is attached to a terminal.
	terminal func(stream interface{}) bool
}

func newGlobalOptions() *globalOptions {
	return &globalOptions{
		v:        viper.New(),
		terminal: isTerminal,
	}
}

// reportedError marks an error whose message was already shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		var reported *reportedError
		if !stderrors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// NewRootCommand returns a fresh dualscan command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newGlobalOptions())
}

func newRootCommand(g *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dualscan",
		Short: "Concurrent TCP and UDP port scanner",
		Long: `dualscan probes every port of a range on one target over TCP (full
connect, with optional banner capture) and UDP (single datagram, reply
classification), then prints a consolidated report of the ports that
answered on either protocol.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		newScanCmd(g),
		newWatchCmd(g),
		newServiceCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)

	return rootCmd
}

// initConfig reads in config file and ENV variables if set.
func (g *globalOptions) initConfig() error {
	if g.cfgFile != "" {
		// Use config file from the flag.
		g.v.SetConfigFile(g.cfgFile)
	} else {
		// Search for config in current directory
		g.v.AddConfigPath(".")
		g.v.SetConfigType("yaml")
		g.v.SetConfigName("config")
	}

	// Read in environment variables that match, e.g. DUALSCAN_SCANNING_WORKERS.
	g.v.SetEnvPrefix(envPrefix)
	g.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	g.v.AutomaticEnv()

	setConfigDefaults(g.v)

	if err := g.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if g.cfgFile != "" || !stderrors.As(err, &notFound) {
			return errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
		}
	} else if g.verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", g.v.ConfigFileUsed())
	}

	return nil
}

// setConfigDefaults registers every key so env variables and Unmarshal see
// them even without a config file.
func setConfigDefaults(v *viper.Viper) {
	d := config.Default()

	// Scanning configuration
	v.SetDefault("scanning.workers", d.Scanning.Workers)
	v.SetDefault("scanning.timeout", d.Scanning.Timeout)
	v.SetDefault("scanning.banner_timeout", d.Scanning.BannerTimeout)
	v.SetDefault("scanning.ports", d.Scanning.Ports)
	v.SetDefault("scanning.udp_payloads", d.Scanning.UDPPayloads)
	v.SetDefault("scanning.parallel_phases", d.Scanning.ParallelPhases)
	v.SetDefault("scanning.rate_limit", d.Scanning.RateLimit)
	v.SetDefault("scanning.services_file", d.Scanning.ServicesFile)
	v.SetDefault("scanning.dns_server", d.Scanning.DNSServer)

	// Logging configuration
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	// Metrics listener
	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)
}

// setup binds the running command's flags to config keys, loads the merged
// configuration and initializes logging from it.
func (g *globalOptions) setup(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	bindings["logging.level"] = "log-level"
	bindings["logging.format"] = "log-format"
	if err := bindFlags(g.v, cmd.Flags(), bindings); err != nil {
		return nil, err
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	initLogging(cfg, g.verbose)
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}
	return nil
}

// loadConfig decodes the merged viper state into a validated Config.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := g.v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogging initializes structured logging based on configuration.
func initLogging(cfg *config.Config, verbose bool) {
	logConfig := logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == "debug",
	}
	if verbose && logConfig.Level != logging.LevelDebug {
		logConfig.Level = logging.LevelInfo
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		// Fall back to default if creation fails
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}

// startMetricsListener serves /metrics and /healthz until ctx is done when a
// listen address is configured.
func startMetricsListener(ctx context.Context, cfg *config.Config) {
	if !cfg.MetricsEnabled() {
		return
	}

	pm := metrics.GetGlobalMetrics()
	server := api.New(cfg.Metrics.ListenAddr, pm)
	go pm.StartPeriodicUpdates(ctx, metricsRefreshInterval)
	go func() {
		if err := server.Start(ctx); err != nil {
			logging.Warn("Metrics listener stopped", "error", err)
		}
	}()
}

func isTerminal(stream interface{}) bool {
	f, ok := stream.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dualscan %s\n", getVersion())
			return err
		},
	}
}
