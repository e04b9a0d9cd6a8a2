// Package main is the SelfDev binary: the HTTP API plus admin commands for
// inspecting and adjusting a user's progression from the terminal.
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
