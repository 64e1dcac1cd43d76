package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anstrom/dualscan/internal/errors"
	"github.com/anstrom/dualscan/internal/scanning"
	"github.com/anstrom/dualscan/internal/services"
)

func newServiceCmd(g *globalOptions) *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service <port> [tcp|udp]",
		Short: "Look up the conventional service name of a port",
		Long: `Print the service name the services database assigns to a port.
Without a protocol the TCP name is preferred and the UDP name is the
fallback, the same rule scan reports use.`,
		Example: `  dualscan service 22
  dualscan service 161 udp`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.setup(cmd, map[string]string{"scanning.services_file": "services-file"})
			if err != nil {
				return err
			}
			return runService(cmd, args, cfg.Scanning.ServicesFile)
		},
	}

	serviceCmd.Flags().String("services-file", "", "services database (default /etc/services)")

	return serviceCmd
}

func runService(cmd *cobra.Command, args []string, servicesFile string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, fmt.Sprintf("invalid port %q", args[0]), err)
	}
	if _, err := scanning.NewPortRange(port, port); err != nil {
		return err
	}

	protocols := []string{services.ProtoTCP, services.ProtoUDP}
	if len(args) == 2 {
		proto := strings.ToLower(args[1])
		if proto != services.ProtoTCP && proto != services.ProtoUDP {
			return errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("unknown protocol %q (want tcp or udp)", args[1]))
		}
		protocols = []string{proto}
	}

	db := services.Default()
	if servicesFile != "" {
		db = services.LoadOrBuiltin(servicesFile)
	}

	out := cmd.OutOrStdout()
	for _, proto := range protocols {
		if name, ok := db.Lookup(port, proto); ok {
			_, err := fmt.Fprintf(out, "%d/%s %s\n", port, proto, name)
			return err
		}
	}
	_, err = fmt.Fprintf(out, "%d/%s unknown\n", port, protocols[0])
	return err
}
