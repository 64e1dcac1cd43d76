package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anstrom/dualscan/internal/errors"
)

const defaultConfigPath = "config.yaml"

func newConfigCmd(g *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the dualscan configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a file",
		Long: `Write the configuration dualscan would use right now (built-in defaults,
then any config file, then DUALSCAN_* environment variables) as YAML.
The file can then be edited and passed with --config.`,
		Example: `  dualscan config init
  DUALSCAN_SCANNING_WORKERS=100 dualscan config init /etc/dualscan.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.setup(cmd, map[string]string{})
			if err != nil {
				return err
			}

			path := defaultConfigPath
			if len(args) == 1 && args[0] != "" {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.NewConfigFieldError(errors.CodeConfiguration,
					"config file already exists (use --force to overwrite)", "path", path)
			}

			if err := cfg.Save(path); err != nil {
				return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
