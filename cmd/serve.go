// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/skyrelay/internal/config"
	"github.com/Thermoquad/skyrelay/internal/logging"
	"github.com/Thermoquad/skyrelay/pkg/api"
	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
	"github.com/Thermoquad/skyrelay/pkg/metrics"
	"github.com/Thermoquad/skyrelay/pkg/publisher"
	"github.com/Thermoquad/skyrelay/pkg/router"
	"github.com/Thermoquad/skyrelay/pkg/store"
)

const shutdownTimeout = 5 * time.Second

var (
	serveListen      string
	serveAutoStart   bool
	servePrintConfig bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry router with its HTTP control API",
	Long: `Run the MAVLink telemetry router as a service.

Configuration is read from --config (YAML) with SKYRELAY_* environment
overrides; --device, --baud and --listen override both. Destinations saved
through the API are stored in the configured sqlite database and restored on
the next start, alongside any listed in the config file.

Endpoints:
  /api/telemetry/*   control API
  /ws, /ws/telemetry live status feed (JSON, or CBOR with ?format=cbor)
  /metrics           Prometheus metrics
  /healthz           liveness

The router starts idle unless serial.auto_start is set or --auto-start is
given; POST /api/telemetry/start starts it on demand.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveAutoStart, "auto-start", false, "Start routing immediately")
	serveCmd.Flags().BoolVar(&servePrintConfig, "print-config", false, "Print the effective configuration as YAML and exit")
}

// loadServeConfig loads the config file and applies command line overrides
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("device") {
		cfg.Serial.Device = deviceName
	}
	if cmd.Flags().Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveAutoStart {
		cfg.Serial.AutoStart = true
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	if servePrintConfig {
		return cfg.WriteYAML(os.Stdout)
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := &link.Dialer{SkipTLSVerify: wsNoSSLVerify}
	if wsUsername != "" {
		dialer.Username = wsUsername
		dialer.Password = os.Getenv("SKYRELAY_PASSWORD")
	}

	registry := destination.NewRegistry()
	defer registry.CloseAll()

	r := router.New(
		router.WithOpener(dialer.Open),
		router.WithLogger(logger.With("component", "router")),
		router.WithRegistry(registry),
		router.WithStopTimeout(cfg.Telemetry.StopTimeout),
		router.WithQueueSize(cfg.Telemetry.QueueSize),
		router.WithDecoderOptions(mavlink.WithUnknownMessages(cfg.Telemetry.AcceptUnknownMessages)),
	)

	db := store.New(cfg.Database)
	defer db.Close()
	if err := restoreDestinations(ctx, cfg, db, r, logger); err != nil {
		return err
	}

	pub := publisher.New(r,
		publisher.WithInterval(cfg.Telemetry.PublishInterval),
		publisher.WithLogger(logger.With("component", "publisher")),
	)
	hub := publisher.NewHub(pub, logger.With("component", "ws"))

	handler := api.New(r,
		api.WithStore(db),
		api.WithDefaults(api.Defaults{
			Device: cfg.Serial.Device,
			Baud:   cfg.Serial.Baud,
			Port:   cfg.Telemetry.DefaultPort,
		}),
		api.WithLogger(logger.With("component", "api")),
		api.WithStatusFeed(hub),
		api.WithMetrics(metrics.Handler(metrics.NewRegistry(r))),
	)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(ln)
	}()

	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("status publisher stopped", "error", err)
		}
	}()

	logger.Info("skyrelay running",
		"listen", ln.Addr().String(),
		"device", cfg.Serial.Device,
		"baud", cfg.Serial.Baud,
		"database", cfg.Database,
		"destinations", registry.Len(),
	)

	if cfg.Serial.AutoStart {
		if err := r.Start(ctx, cfg.Serial.Device, cfg.Serial.Baud); err != nil {
			// The API can retry after a stop
			logger.Error("auto start failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveDone:
		logger.Error("http server stopped", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http shutdown", "error", err)
	}
	if err := r.Stop(); err != nil {
		logger.Warn("router stop", "error", err)
	}
	<-pubDone

	logger.Info("skyrelay stopped")
	return nil
}

// restoreDestinations registers the persisted destinations followed by the
// ones listed in the config file. A name present in both keeps the persisted
// entry.
func restoreDestinations(ctx context.Context, cfg *config.Config, db *store.Store, r *router.Router, logger *slog.Logger) error {
	add := func(c destination.Config) error {
		_, err := r.AddDestination(c)
		return err
	}

	n, err := db.Restore(ctx, add)
	if err != nil {
		// Individual bad rows are logged; the service still starts
		logger.Warn("some stored destinations were not restored", "error", err)
	}
	if n > 0 {
		logger.Info("restored destinations", "count", n)
	}

	for _, c := range cfg.Destinations {
		err := add(c)
		switch {
		case err == nil:
		case errors.Is(err, destination.ErrDuplicateName):
			logger.Debug("config destination shadowed by stored entry", "destination", c.Name)
		default:
			return fmt.Errorf("destination %s: %w", c.Name, err)
		}
	}
	return nil
}
