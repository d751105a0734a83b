// Package main is the entry point for the chanrelay application.
package main

import (
	"os"

	"github.com/chanrelay/chanrelay/cmd/chanrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
