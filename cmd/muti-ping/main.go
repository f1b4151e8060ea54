// Package main provides the CLI entry point for muti-ping.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/postalsys/muti-ping/internal/config"
	"github.com/postalsys/muti-ping/internal/health"
	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/metrics"
	"github.com/postalsys/muti-ping/internal/sysinfo"
	"github.com/postalsys/muti-ping/pkg/ping"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "muti-ping",
		Short: "muti-ping - ICMP echo client and probe server",
		Long: `muti-ping sends ICMP echo requests over IPv4 and IPv6.

It uses the native echo API on Windows and ICMP sockets elsewhere,
and can run an HTTP probe server exposing ping, WebSocket ping
sessions and Prometheus metrics.`,
		Version:       sysinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add subcommands
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func pingCmd() *cobra.Command {
	var (
		configPath   string
		count        int
		interval     time.Duration
		timeout      time.Duration
		ttl          int
		size         string
		dontFragment bool
		async        bool
		raw          bool
		ipv4         bool
		ipv6         bool
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "ping <host>",
		Short: "Send echo requests to a host",
		Long: `Send ICMP echo requests to a host and print the replies.

Flags not given on the command line are taken from --config when set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("timeout") {
				cfg.Ping.Timeout = timeout
			}
			if flags.Changed("ttl") {
				cfg.Ping.TTL = ttl
			}
			if flags.Changed("size") {
				if err := cfg.Ping.PayloadSize.UnmarshalText([]byte(size)); err != nil {
					return err
				}
			}
			if flags.Changed("dont-fragment") {
				cfg.Ping.DontFragment = dontFragment
			}
			if raw {
				cfg.Ping.SocketMode = "raw"
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if int(cfg.Ping.PayloadSize) > ping.MaxPayload {
				return fmt.Errorf("size exceeds %d bytes", ping.MaxPayload)
			}
			if interval <= 0 {
				return errors.New("interval must be positive")
			}

			network := "ip"
			switch {
			case ipv4 && ipv6:
				return errors.New("-4 and -6 are mutually exclusive")
			case ipv4:
				network = "ip4"
			case ipv6:
				network = "ip6"
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr, err := resolveHost(ctx, network, args[0])
			if err != nil {
				return err
			}

			pinger := ping.New(
				ping.WithLogger(logging.NewLogger(cfg.Log.Level, cfg.Log.Format)),
				ping.WithSocketMode(cfg.Ping.Mode()),
			)

			r := &runner{
				pinger:  pinger,
				out:     newPrinter(os.Stdout),
				host:    args[0],
				addr:    addr,
				timeout: cfg.Ping.Timeout,
				payload: ping.Payload(int(cfg.Ping.PayloadSize)),
				opts:    cfg.Ping.Options(),
				count:   count,
				limiter: rate.NewLimiter(rate.Every(interval), 1),
				async:   async,
				stats:   newStats(),
			}
			return r.run(ctx)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().IntVarP(&count, "count", "c", 4, "Number of echo requests to send (0 sends until interrupted)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Time between echo requests")
	cmd.Flags().DurationVarP(&timeout, "timeout", "W", defaults.Ping.Timeout, "Time to wait for each reply")
	cmd.Flags().IntVarP(&ttl, "ttl", "t", defaults.Ping.TTL, "Time to live")
	cmd.Flags().StringVarP(&size, "size", "s", "32B", "Payload size (e.g. 56, 1KiB)")
	cmd.Flags().BoolVarP(&dontFragment, "dont-fragment", "D", false, "Set the don't-fragment flag")
	cmd.Flags().BoolVar(&async, "async", false, "Send through the asynchronous completion path")
	cmd.Flags().BoolVar(&raw, "raw", false, "Use raw ICMP sockets (requires privileges)")
	cmd.Flags().BoolVarP(&ipv4, "ipv4", "4", false, "Resolve the host to an IPv4 address")
	cmd.Flags().BoolVarP(&ipv6, "ipv6", "6", false, "Resolve the host to an IPv6 address")
	cmd.Flags().StringVar(&logLevel, "log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", defaults.Log.Format, "Log format (text, json)")

	return cmd
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the probe server",
		Long:  "Start the HTTP probe server with the specified configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.NewMetricsWithRegistry(reg)

			pinger := ping.New(
				ping.WithLogger(logger),
				ping.WithMetrics(m),
				ping.WithSocketMode(cfg.Ping.Mode()),
			)

			srv := health.NewServer(serverConfig(cfg), pinger)
			srv.SetLogger(logger)
			srv.SetMetrics(m, reg)

			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start probe server: %w", err)
			}

			logger.Info("probe server running",
				logging.KeyListen, srv.Address().String(),
				logging.KeyMode, cfg.Ping.Mode().String())

			// Wait for shutdown signal
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			sig := <-sigCh
			logger.Info("shutting down", "signal", sig.String())

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			start := time.Now()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("shutdown failed", logging.KeyError, err)
				return err
			}

			logger.Info("probe server stopped",
				logging.KeyCount, srv.Stats().Probes,
				logging.KeyDuration, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}

func configCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration",
		Long:  "Print the default configuration, or the validated contents of --config with environment variables expanded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}

// serverConfig maps the health and ping sections onto the probe server.
func serverConfig(cfg *config.Config) health.ServerConfig {
	return health.ServerConfig{
		Address:      cfg.Health.Address,
		ReadTimeout:  cfg.Health.ReadTimeout,
		WriteTimeout: cfg.Health.WriteTimeout,
		Timeout:      cfg.Ping.Timeout,
		TTL:          uint8(cfg.Ping.TTL),
		DontFragment: cfg.Ping.DontFragment,
		PayloadSize:  int(cfg.Ping.PayloadSize),
		MaxTimeout:   cfg.Health.MaxTimeout,
		WSRate:       cfg.Health.WSRate,
		WSBurst:      cfg.Health.WSBurst,
	}
}
