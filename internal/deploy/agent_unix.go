//go:build !windows
// +build !windows

// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// getSSHAgent connects to the agent listening on SSH_AUTH_SOCK, if any.
// The returned closer releases the socket.
func getSSHAgent() (agent.Agent, func() error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil
	}
	return agent.NewClient(conn), conn.Close
}
