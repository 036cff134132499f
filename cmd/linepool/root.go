package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/linepool/internal/logger"
	"github.com/marmos91/linepool/pkg/config"
	"github.com/marmos91/linepool/pkg/server"
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates the root command and attaches the subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linepool",
		Short: "A concurrent line-protocol task server.",
		Long: `linepool accepts newline-terminated requests over TCP, queues them in a
bounded task queue and processes them on a fixed pool of workers. Replies are
written back in request order on each connection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", config.GetDefaultConfigPath()))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server and run until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "address to bind")
	flags.Int("port", config.DefaultPort, "TCP port to listen on (0 picks a free port)")
	flags.Int("workers", server.DefaultWorkers, "number of workers")
	flags.Int("queue", server.DefaultQueueSize, "task queue capacity")
	flags.String("backpressure", config.DefaultBackpressure, "policy when the queue is full (block, reject)")
	flags.Bool("reject-when-full", false, "shorthand for --backpressure reject")
	flags.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.Bool("metrics", false, "serve Prometheus metrics")
	flags.Int("metrics-port", config.DefaultMetricsPort, "metrics HTTP port")
	flags.Duration("stats-interval", 0, "stats reporting period (default 2s)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m := config.InitializeMetrics(cfg)

	srv, err := config.CreateServer(cfg, m)
	if err != nil {
		return err
	}

	logger.Info("Starting linepool on %s:%d (workers=%d queue=%d backpressure=%s)",
		cfg.Server.Host, cfg.Server.Port, cfg.Workers.Count, cfg.Queue.Size, cfg.Queue.Backpressure)

	err = srv.Serve(ctx)
	if errors.Is(err, server.ErrShutdownTimeout) {
		logger.Warn("Shutdown finished after dropping queued requests: %v", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func newInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default value.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				written, err := config.InitConfig(force)
				if err != nil {
					return err
				}
				path = written
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cmd.Flags().StringVar(&path, "path", "", "write to this file instead of the default location")

	return cmd
}
