// Package main provides the entry point for the ragcli CLI.
package main

import (
	"os"

	"github.com/ragcore/ragcore/cmd/ragcli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
