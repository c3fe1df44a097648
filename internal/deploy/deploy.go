// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"fmt"
	"io"
	"time"

	"invent.kde.org/websites/apideploy/internal/model"
)

// Transporter copies local files or directory trees into a remote directory.
type Transporter interface {
	Upload(ctx context.Context, remoteDir string, sources ...string) error
}

// RemoteController runs a single shell command on the remote host.
type RemoteController interface {
	Run(ctx context.Context, command string) error
}

// Session is an open channel to the deployment target.
type Session interface {
	Transporter
	RemoteController
	Close() error
}

// RemoteCommandError reports a remote command that exited non-zero.
// ExitStatus is -1 when the remote side closed without reporting one.
type RemoteCommandError struct {
	Command    string
	ExitStatus int
}

func (e *RemoteCommandError) Error() string {
	if e.ExitStatus < 0 {
		return fmt.Sprintf("remote command %q exited without status", e.Command)
	}
	return fmt.Sprintf("remote command %q failed with exit status %d", e.Command, e.ExitStatus)
}

// Options configures a connection to the deployment target.
type Options struct {
	Target         model.DeploymentTarget
	Port           int
	Identities     []string
	KnownHosts     string
	ConnectTimeout time.Duration
	UseAgent       bool
	UseKeyring     bool
	// Stdout and Stderr receive remote command output.
	Stdout io.Writer
	Stderr io.Writer
	// Progress receives transfer progress; nil disables it.
	Progress io.Writer
}

// Default timeouts.
const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultHostKeyTimeout    = 5 * time.Second
)

// Commands issued on the target during a deployment.
func MkdirCommand(dir string) string { return "mkdir -p " + dir }

const DaemonReloadCommand = "systemctl --user daemon-reload"

func RestartCommand(unit string) string { return "systemctl --user restart " + unit }
