// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseHostPort splits an address that may carry a user prefix, brackets or
// a port into host and port. port is empty when none was given.
func ParseHostPort(in string) (host, port string, err error) {
	s := strings.TrimSpace(in)
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "", "", fmt.Errorf("empty host in %q", in)
	}

	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", "", fmt.Errorf("missing ']' in %q", in)
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", "", fmt.Errorf("unexpected %q after ']' in %q", rest, in)
		}
		return host, rest[1:], nil
	}

	// More than one colon without brackets is a bare IPv6 address.
	if strings.Count(s, ":") > 1 {
		return s, "", nil
	}
	if h, p, splitErr := net.SplitHostPort(s); splitErr == nil {
		return h, p, nil
	}
	return s, "", nil
}

// JoinHostPort joins host and port, using defaultPort when port is empty.
func JoinHostPort(host, port, defaultPort string) string {
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port)
}

// CanonicalizeHostPort returns host:port with port 22 filled in.
func CanonicalizeHostPort(in string) string {
	h, p, err := ParseHostPort(in)
	if err != nil {
		return in
	}
	return JoinHostPort(h, p, "22")
}

// ResolveEndpoint splits a configured host, which may carry a user prefix
// or its own port, into the bare host and the port to dial. A port written
// in host wins over port; 22 is used when neither is set.
func ResolveEndpoint(host string, port int) (string, int, error) {
	h, p, err := ParseHostPort(host)
	if err != nil {
		return "", 0, err
	}
	if p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return "", 0, fmt.Errorf("invalid port %q in %q", p, host)
		}
		return h, n, nil
	}
	if port <= 0 {
		port = 22
	}
	return h, port, nil
}
