//go:build windows
// +build windows

// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"os"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent prefers a Pageant-compatible agent and falls back to the
// OpenSSH for Windows named pipe.
func getSSHAgent() (agent.Agent, func() error) {
	if pageant.Available() {
		return pageant.New(), nil
	}

	pipe := os.Getenv("SSH_AUTH_SOCK")
	if pipe == "" {
		pipe = `\\.\pipe\openssh-ssh-agent`
	}
	conn, err := winio.DialPipe(pipe, nil)
	if err != nil || conn == nil {
		return nil, nil
	}
	return agent.NewClient(conn), conn.Close
}
