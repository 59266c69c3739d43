// File: cmd/hioload-httpd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-httpd serves static files from a document root over HTTP/1.1.
//
//	hioload-httpd <port> [--docroot dir] [--workers n] [--config file] ...

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

type cliConfig struct {
	server.Config `mapstructure:",squash"`

	LogLevel      string `mapstructure:"log_level"`
	MetricsStdout bool   `mapstructure:"metrics_stdout"`
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	def := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "hioload-httpd <port>",
		Short: "Event-driven static file server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("port %q: %w", args[0], api.ErrInvalidArgument)
			}
			cfg := cliConfig{Config: def, LogLevel: "info"}
			if err := control.Load(&cfg, configFile, cmd.Flags()); err != nil {
				return err
			}
			cfg.Port = port
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	f.String("host", def.Host, "bind address, empty for all interfaces")
	f.String("docroot", def.DocRoot, "document root")
	f.Int("workers", def.Workers, "worker goroutines")
	f.Int("max-requests", def.MaxRequests, "work queue depth")
	f.Int("max-connections", def.MaxConnections, "maximum live connections")
	f.Duration("idle-timeout", def.IdleTimeout, "close connections idle for this long")
	f.Duration("time-slot", def.TimeSlot, "idle sweep period")
	f.Bool("not-found-responses", def.NotFoundResponses, "answer 404 for missing files")
	f.Bool("pin-workers", def.PinWorkers, "bind each worker to one CPU")
	f.String("log-level", "info", "debug, info, warn or error")
	f.Bool("metrics-stdout", false, "export metrics to stdout periodically")
	return cmd
}

func run(ctx context.Context, cfg cliConfig, out io.Writer) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.MetricsStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mp.Shutdown(sctx); err != nil {
				logger.Warn("meter provider shutdown", zap.Error(err))
			}
		}()
		otel.SetMeterProvider(mp)
	}

	metrics, err := control.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	probes := control.NewDebugProbes()
	srv, err := server.NewServer(cfg.Config,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithProbes(probes))
	if err != nil {
		logger.Error("server init failed", zap.Error(err))
		return err
	}

	err = srv.Run(ctx)
	logger.Info("final state", zap.Any("probes", probes.DumpState()))
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, api.ErrInvalidArgument)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
