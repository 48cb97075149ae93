package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinkv/pkg/api"
	"github.com/ssargent/pinkv/pkg/di"
	"github.com/ssargent/pinkv/pkg/engine"
	"github.com/ssargent/pinkv/pkg/metrics"
)

func newServeCmd(container *di.Container) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the pinkv REST API server. It stops gracefully on SIGINT or
SIGTERM, waiting up to --drain-timeout for in-flight reads to release their
values before the engine is closed.

Examples:
  pinkv serve
  pinkv serve --port 9200 --bind 0.0.0.0
  pinkv serve --api-key mysecretkey --backend logstore`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			eng, cfg, logger, err := openEngine(cmd, container, m)
			if err != nil {
				return err
			}
			defer closeEngine(eng, &err)

			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			apiKey, _ := cmd.Flags().GetString("api-key")
			if apiKey == "" {
				apiKey = cfg.Security.APIKey
			}
			if apiKey == "" || apiKey == "auto" {
				return errors.New("no API key configured: run 'pinkv init' or pass --api-key")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cmd.Printf("Starting pinkv (%s) on %s:%d\n", eng.Backend(), cfg.Bind, cfg.Port)
			starter := container.GetServerFactory().CreateServerStarter()
			err = starter.StartServer(ctx, eng, api.ServerConfig{
				Bind:   cfg.Bind,
				Port:   cfg.Port,
				APIKey: apiKey,
			}, api.Deps{
				Logger:   logger,
				Metrics:  m,
				Gatherer: reg,
			})

			drainTimeout, _ := cmd.Flags().GetDuration("drain-timeout")
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if derr := engine.Drain(drainCtx, eng); derr != nil {
				logger.Warnf("pinned values still open after %s: %v", drainTimeout, derr)
			}
			return err
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to (overrides config)")
	serveCmd.Flags().String("api-key", "", "API key for clients (overrides config)")
	serveCmd.Flags().Duration("drain-timeout", 10*time.Second, "How long to wait for open reads before closing the engine")
	return serveCmd
}
