// Package main implements portalctl, a headless driver for the portal client
// data layer: it syncs the local mirrors, manages the session and watches
// connectivity.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
