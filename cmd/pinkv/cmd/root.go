// Package cmd implements the pinkv command line.
package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/backend"
	"github.com/ssargent/pinkv/pkg/config"
	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// NewRootCmd builds the command tree. Dependencies come from container so
// tests can swap the engine and the server.
func NewRootCmd(container *di.Container) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pinkv",
		Short: "pinkv - zero-copy reads over embedded storage engines",
		Long: `pinkv serves values straight out of a storage engine's own memory.
Reads pin the engine buffer until the value has been written out, and the
engine cannot be closed while any read is still pinned.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("backend", "", "Engine backend: pebble or logstore (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		newInitCmd(),
		newPutCmd(container),
		newGetCmd(container),
		newDeleteCmd(container),
		newServeCmd(container),
	)
	return rootCmd
}

// configPath returns the --config flag or the default location.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig reads the config file when it exists and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)

	cfg := config.DefaultConfig()
	if config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Engine.Backend = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(cmd.ErrOrStderr(), level), nil
}

// openEngine loads the config and opens the engine it names.
func openEngine(cmd *cobra.Command, container *di.Container, observer pinned.Observer) (engine.Engine, *config.Config, *logging.Logger, error) {
	if container == nil {
		return nil, nil, nil, errors.New("dependency container not initialized")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	eng, err := container.GetEngineOpener()(cfg, backend.Deps{Logger: logger, Observer: observer})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to open engine")
	}
	return eng, cfg, logger, nil
}

// closeEngine closes eng and folds its error into err.
func closeEngine(eng engine.Engine, err *error) {
	if cerr := eng.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// columnFamilyFlag registers --cf on cmd.
func columnFamilyFlag(cmd *cobra.Command) {
	cmd.Flags().String("cf", engine.DefaultColumnFamily, "Column family")
}
