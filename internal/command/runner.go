// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package command runs local programs on behalf of the build and transport
// layers. Output is streamed to the operator so failing tools speak for
// themselves; only the exit status is inspected.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes a program and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExitError reports a program that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// NewExecRunner returns a runner attached to the process's standard streams.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}
}

// Run starts name with args and waits for it. A non-zero exit is returned as
// *ExitError; failure to start is returned wrapped.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Stdin = r.Stdin

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: Format(name, args...), ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("failed to run %s: %w", name, err)
}

// Format renders a command line for logs and plans.
func Format(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
