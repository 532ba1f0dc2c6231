// Package main is the bpsecpolicy CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/dtn-go/bpsecpolicy/internal/cli"
)

// Build info set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	if path := os.Getenv("BPSECPOLICY_CONFIG"); path != "" {
		cli.SetConfigDefault(path)
	}
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
