// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command custody runs the fleet catalog engine and talks to a running
// engine from the command line.
//
//	custody run                  serve the engine
//	custody ctl <command>        drive a running engine
//	custody replay <capture>     rebuild state from a recorded session
//	custody inject <capture>     send recorded events to an engine
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an error with
		// an exit code and no further message.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}
