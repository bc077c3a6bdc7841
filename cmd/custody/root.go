// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/version"
)

func root() *cli.Command {
	return &cli.Command{
		Name: "custody",
		Description: `Custody: fleet data custody dashboard engine.

Tracks which recorded files exist on robots, on the local ingest
server, and in remote storage, and requests transfers between them.`,
		Subcommands: []*cli.Command{
			runCommand(),
			ctlCommand(),
			replayCommand(),
			injectCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Serve the engine with a configuration file", Command: "custody run --config /etc/custody/custody.yaml"},
			{Description: "Show the catalog tree of the running engine", Command: "custody ctl tree"},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			if err := noArguments(args); err != nil {
				return err
			}
			fmt.Println(version.Full())
			return nil
		},
	}
}

// configFlag binds --config to path.
func configFlag(flags *pflag.FlagSet, path *string) {
	flags.StringVar(path, "config", "", "configuration file (default $"+config.EnvironmentVariable+", else built-in defaults)")
}

// loadConfig reads path, or the file named by the environment, or
// falls back to the defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	}
	return config.Default(), nil
}

func noArguments(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	return nil
}
