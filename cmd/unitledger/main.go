// Command unitledger runs the unit registry: an HTTP server plus one-shot
// commands against the configured store.
package main

import (
	"os"
)

// Build information injected via ldflags at build time.
var version = "dev"

var exitFunc = os.Exit

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.Version = version
	if err := root.Execute(); err != nil {
		exitFunc(1)
		return
	}
	exitFunc(0)
}
