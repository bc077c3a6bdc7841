// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/capture"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/control"
	"github.com/bureau-foundation/custody/lib/dashboard"
	"github.com/bureau-foundation/custody/lib/transport"
	"github.com/bureau-foundation/custody/lib/version"
)

const metricsShutdownTimeout = 5 * time.Second

func runCommand() *cli.Command {
	var (
		configPath string
		verbose    bool
	)
	return &cli.Command{
		Name:    "run",
		Summary: "Serve the catalog engine",
		Description: `Serve the catalog engine until interrupted.

The engine listens for backend events on the event socket, sends
expand, action, search, and metadata requests to the request socket,
and accepts local commands on the control socket. With capture.path
set, every inbound envelope is recorded for "custody replay".`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
			return flags
		},
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewLogger(verbose)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// serve runs the engine until ctx is cancelled or a component fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID)

	for _, socketPath := range []string{cfg.Backend.EventSocket, cfg.Control.Socket} {
		if socketPath == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := dashboard.NewMetrics(registry)

	outbox := transport.NewOutbox(cfg.Backend.RequestSocket, sessionID, cfg.Backend.OutboxSize, logger)
	outbox.OnResult = metrics.ObserveDelivery

	realClock := clock.Real()
	state := dashboard.NewState(dashboard.Options{
		Emitter:                       outbox,
		Clock:                         realClock,
		Logger:                        logger,
		Metrics:                       metrics,
		AccumulatorTTL:                cfg.Engine.AccumulatorTTL.Std(),
		ExpandTimeout:                 cfg.Engine.ExpandTimeout.Std(),
		ExpandMaxAttempts:             cfg.Engine.ExpandMaxAttempts,
		PageSize:                      cfg.Search.PageSize,
		CancelInvalidatesAccumulators: cfg.Engine.CancelInvalidatesAccumulators,
	})

	var recorder *capture.Writer
	if cfg.Capture.Path != "" {
		compression, err := capture.ParseCompression(cfg.Capture.Compression)
		if err != nil {
			return err
		}
		recorder, err = capture.Create(cfg.Capture.Path, compression)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing capture", "path", cfg.Capture.Path, "error", err)
				return
			}
			logger.Info("capture closed", "path", cfg.Capture.Path, "envelopes", recorder.Count())
		}()
	}

	session := dashboard.NewSession(dashboard.SessionOptions{
		State:        state,
		Clock:        realClock,
		Logger:       logger,
		TickInterval: cfg.Engine.TickInterval.Std(),
		Capture:      recorder,
	})
	listener := transport.NewListener(cfg.Backend.EventSocket, session.DeliverEnvelope, logger)

	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error { return session.Run(groupContext) })
	group.Go(func() error { return outbox.Run(groupContext) })
	group.Go(func() error { return listener.Serve(groupContext) })

	if cfg.Control.Socket != "" {
		server := control.NewServer(cfg.Control.Socket, logger)
		control.Register(server, session)
		group.Go(func() error { return server.Serve(groupContext) })
	}
	if cfg.Metrics.Listen != "" {
		group.Go(func() error {
			return serveMetrics(groupContext, cfg.Metrics.Listen, registry, logger)
		})
	}

	logger.Info("custody engine starting",
		"version", version.Info(),
		"event_socket", cfg.Backend.EventSocket,
		"request_socket", cfg.Backend.RequestSocket,
	)
	return group.Wait()
}

// serveMetrics serves /metrics from registry until ctx is cancelled.
func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownContext, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownContext)
	})
	defer stop()

	logger.Info("metrics listening", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
