// Package main is the entry point for the sheetclaw CLI.
package main

import (
	"os"

	"github.com/KafClaw/sheetclaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
