// Package main is the entry point for the meeting digest service.
package main

import (
	"fmt"
	"os"

	"github.com/meeting-digest/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
