// Command linepool runs the line-protocol task server.
//
// Usage:
//
//	linepool serve [--config path] [--port 9000] [--workers 8] [--queue 500]
//	               [--backpressure block|reject] [--reject-when-full]
//	linepool init [--force] [--path file]
//
// Settings are read from the config file, then LINEPOOL_* environment
// variables, then flags (highest precedence).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
