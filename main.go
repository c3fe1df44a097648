// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for apideploy.
//
// Usage:
//
//	go run . [flags]
//	./apideploy [flags]
//
// Run from the service checkout; without a subcommand it builds and deploys.
// See --help for options.
package main

import (
	"os"

	"invent.kde.org/websites/apideploy/internal/logging"
	"invent.kde.org/websites/apideploy/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}
