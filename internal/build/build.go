// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package build drives the local build tools: the service build that produces
// the deployable binary and the optional documentation build.
package build

import (
	"context"
	"errors"

	"invent.kde.org/websites/apideploy/internal/command"
)

var errEmptyCommand = errors.New("empty command")

// Builder produces the service binary.
type Builder struct {
	Runner command.Runner
	// Command is the build invocation without the output flag,
	// e.g. ["go", "build", "-v"].
	Command []string
}

// Args returns the full command line used to produce output.
func (b *Builder) Args(output string) []string {
	args := append([]string{}, b.Command...)
	return append(args, "-o", output)
}

// Build runs the build command with "-o output" appended.
func (b *Builder) Build(ctx context.Context, output string) error {
	if len(b.Command) == 0 {
		return errEmptyCommand
	}
	args := b.Args(output)
	return b.Runner.Run(ctx, args[0], args[1:]...)
}

// DocBuilder generates the documentation tree.
type DocBuilder struct {
	Runner  command.Runner
	Command []string
}

// Build runs the documentation command.
func (d *DocBuilder) Build(ctx context.Context) error {
	if len(d.Command) == 0 {
		return errEmptyCommand
	}
	return d.Runner.Run(ctx, d.Command[0], d.Command[1:]...)
}
