// Package main is the entry point for deskctl.
// deskctl talks to a running backdesk over its local HTTP API.
package main

import (
	"os"

	"backdesk/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
