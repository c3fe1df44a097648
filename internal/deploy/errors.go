// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

func containsAny(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// IsConnectionTimeoutError reports whether err looks like a dial or handshake timeout.
func IsConnectionTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsAny(err, "timeout", "deadline exceeded")
}

// IsConnectionRefusedError reports whether the host could not be reached.
func IsConnectionRefusedError(err error) bool {
	return containsAny(err, "connection refused", "no route to host")
}

// IsAuthenticationError reports whether the server rejected our credentials.
func IsAuthenticationError(err error) bool {
	return containsAny(err, "unable to authenticate", "authentication failed", "permission denied", "public key")
}

// IsHostKeyError reports whether host key verification failed.
func IsHostKeyError(err error) bool {
	return containsAny(err, "host key mismatch", "unknown host key", "host key verification failed")
}

// ClassifyConnectionError wraps err with a message naming the failure class.
func ClassifyConnectionError(host string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsHostKeyError(err):
		return fmt.Errorf("host key verification failed for %s: %w", host, err)
	case IsConnectionTimeoutError(err):
		return fmt.Errorf("connection to %s timed out: %w", host, err)
	case IsConnectionRefusedError(err):
		return fmt.Errorf("connection to %s refused: %w", host, err)
	case IsAuthenticationError(err):
		return fmt.Errorf("authentication failed for %s: %w", host, err)
	default:
		return fmt.Errorf("failed to connect to %s: %w", host, err)
	}
}
