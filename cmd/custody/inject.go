// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/capture"
	"github.com/bureau-foundation/custody/lib/schema"
	"github.com/bureau-foundation/custody/lib/transport"
)

func injectCommand() *cli.Command {
	var (
		configPath string
		socketPath string
		batchSize  int
	)
	return &cli.Command{
		Name:    "inject",
		Summary: "Send a capture's envelopes to a running engine",
		Description: `Send every envelope of a capture file to an engine's event socket,
as if the backend had sent them. Envelopes are sent in capture order,
batchSize per connection, without the original delays.`,
		Usage: "custody inject [flags] <capture>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("inject", pflag.ContinueOnError)
			configFlag(flags, &configPath)
			flags.StringVar(&socketPath, "socket", "", "event socket (default backend.event_socket from the configuration)")
			flags.IntVar(&batchSize, "batch", 64, "envelopes per connection")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one capture file, got %d arguments", len(args))
			}
			if batchSize < 1 {
				return fmt.Errorf("--batch must be positive, got %d", batchSize)
			}
			if socketPath == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				socketPath = cfg.Backend.EventSocket
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			totals, err := inject(ctx, args[0], socketPath, batchSize, transport.Send)
			fmt.Fprintf(os.Stderr, "%d envelopes accepted, %d dropped\n", totals.Accepted, totals.Dropped)
			return err
		},
	}
}

// inject sends the capture at path to socketPath in batches.
func inject(ctx context.Context, path, socketPath string, batchSize int, send transport.SendFunc) (transport.Response, error) {
	var totals transport.Response
	reader, err := capture.Open(path)
	if err != nil {
		return totals, err
	}
	defer reader.Close()

	flush := func(batch []schema.Envelope) error {
		if len(batch) == 0 {
			return nil
		}
		response, err := send(ctx, socketPath, batch...)
		totals.Accepted += response.Accepted
		totals.Dropped += response.Dropped
		var delivery *transport.DeliveryError
		if errors.As(err, &delivery) {
			// Rejected envelopes are reported in the totals.
			return nil
		}
		return err
	}

	batch := make([]schema.Envelope, 0, batchSize)
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return totals, err
		}
		batch = append(batch, entry.Envelope)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return totals, err
			}
			batch = batch[:0]
		}
	}
	return totals, flush(batch)
}
