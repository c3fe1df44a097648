// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"invent.kde.org/websites/apideploy/internal/command"
	"invent.kde.org/websites/apideploy/internal/model"
)

// OpenSSH is a Session that shells out to the system rsync and ssh
// binaries, picking up the user's ~/.ssh/config and agent.
type OpenSSH struct {
	Runner   command.Runner
	Target   model.DeploymentTarget
	Port     int
	Identity string
}

// NewOpenSSH builds an OpenSSH session from connection options. Only the
// first identity file that exists is passed to ssh; others are left to
// ssh's own defaults.
func NewOpenSSH(runner command.Runner, opts Options) *OpenSSH {
	o := &OpenSSH{Runner: runner, Target: opts.Target, Port: opts.Port}
	for _, id := range opts.Identities {
		if _, err := os.Stat(id); err == nil {
			o.Identity = id
			break
		}
	}
	return o
}

// endpoint returns the bare host and the port to connect to. A port
// written into Target.Host wins over Port.
func (o *OpenSSH) endpoint() (string, int) {
	host, port, err := ResolveEndpoint(o.Target.Host, o.Port)
	if err != nil {
		return o.Target.Host, o.Port
	}
	return host, port
}

// destination is user@host for ssh. With dir set it is the rsync form
// user@host:dir, bracketing IPv6 literals.
func (o *OpenSSH) destination(dir string) string {
	host, _ := o.endpoint()
	if dir == "" {
		return o.Target.User + "@" + host
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return o.Target.User + "@" + host + ":" + dir
}

func (o *OpenSSH) sshFlags() []string {
	var args []string
	if _, port := o.endpoint(); port != 0 && port != 22 {
		args = append(args, "-p", strconv.Itoa(port))
	}
	if o.Identity != "" {
		args = append(args, "-i", o.Identity)
	}
	return args
}

// RsyncArgs returns the rsync argument list for an upload. Directory trees
// are compressed in transit.
func (o *OpenSSH) RsyncArgs(remoteDir string, sources ...string) []string {
	flags := "-av"
	for _, src := range sources {
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			flags = "-avz"
			break
		}
	}
	rsh := strings.Join(append([]string{"ssh"}, o.sshFlags()...), " ")
	args := []string{flags, "--progress", "-e", rsh}
	args = append(args, sources...)
	return append(args, o.destination(remoteDir))
}

// Upload runs rsync.
func (o *OpenSSH) Upload(ctx context.Context, remoteDir string, sources ...string) error {
	return o.Runner.Run(ctx, "rsync", o.RsyncArgs(remoteDir, sources...)...)
}

// Run runs command through ssh.
func (o *OpenSSH) Run(ctx context.Context, cmd string) error {
	args := append(o.sshFlags(), o.destination(""), cmd)
	err := o.Runner.Run(ctx, "ssh", args...)
	var exitErr *command.ExitError
	// ssh itself exits 255 on connection errors, which are not remote failures.
	if errors.As(err, &exitErr) && exitErr.ExitCode != 255 {
		return &RemoteCommandError{Command: cmd, ExitStatus: exitErr.ExitCode}
	}
	return err
}

// Close is a no-op; every call is its own process.
func (o *OpenSSH) Close() error { return nil }
