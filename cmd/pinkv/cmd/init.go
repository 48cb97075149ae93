package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file with a generated API key",
		Long: `Create a pinkv config file with a freshly generated API key.

Examples:
  pinkv init
  pinkv init --data-dir ./data --backend logstore --print-key
  pinkv init --config ./pinkv.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			dataDir, _ := cmd.Flags().GetString("data-dir")
			backendName, _ := cmd.Flags().GetString("backend")
			force, _ := cmd.Flags().GetBool("force")
			printKey, _ := cmd.Flags().GetBool("print-key")

			if config.ConfigExists(path) && !force {
				cmd.Printf("Config already exists at %s. Use --force to overwrite.\n", path)
				return nil
			}

			cfg, err := config.BootstrapConfig(path, dataDir, backendName)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration created at %s\n", path)
			cmd.Printf("Engine: %s in %s\n", cfg.Engine.Backend, cfg.DataDir)
			if printKey {
				cmd.Printf("API key: %s\n", cfg.Security.APIKey)
			}
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")
	return initCmd
}
