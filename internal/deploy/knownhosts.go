// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrUnknownHost is returned when the target has no entry in known_hosts.
var ErrUnknownHost = errors.New("unknown host key")

// hostKeyVerifier checks presented host keys against a known_hosts file.
type hostKeyVerifier struct {
	file     string
	callback ssh.HostKeyCallback
}

func newHostKeyVerifier(file string) (*hostKeyVerifier, error) {
	v := &hostKeyVerifier{file: file}
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read known_hosts %s: %w", file, err)
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse known_hosts %s: %w", file, err)
	}
	v.callback = cb
	return v, nil
}

// Check is an ssh.HostKeyCallback.
func (v *hostKeyVerifier) Check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if v.callback == nil {
		return fmt.Errorf("%w for %s. run 'apideploy trust-host' to add it", ErrUnknownHost, hostname)
	}
	err := v.callback(hostname, remote, key)
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		if len(keyErr.Want) == 0 {
			return fmt.Errorf("%w for %s. run 'apideploy trust-host' to add it", ErrUnknownHost, hostname)
		}
		return fmt.Errorf("!!! HOST KEY MISMATCH FOR %s !!!\nRemote key presented: %s\nKnown key at %s:%d\nThis could be a man-in-the-middle attack",
			hostname, ssh.FingerprintSHA256(key), keyErr.Want[0].Filename, keyErr.Want[0].Line)
	}
	return err
}

// Algorithms returns the host key algorithms already recorded for addr, so
// the server is asked for a key type we can actually verify.
func (v *hostKeyVerifier) Algorithms(addr string) []string {
	if v.callback == nil {
		return nil
	}
	// Checking a throwaway key makes knownhosts list what it has for addr.
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil
	}
	throwaway, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil
	}
	var keyErr *knownhosts.KeyError
	if !errors.As(v.callback(addr, &net.TCPAddr{}, throwaway), &keyErr) {
		return nil
	}
	var algos []string
	seen := map[string]bool{}
	for _, k := range keyErr.Want {
		for _, a := range algorithmsForKeyType(k.Key.Type()) {
			if !seen[a] {
				seen[a] = true
				algos = append(algos, a)
			}
		}
	}
	return algos
}

func algorithmsForKeyType(t string) []string {
	if t == ssh.KeyAlgoRSA {
		return []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
	}
	return []string{t}
}

// FetchHostKey performs a handshake with addr only to learn its host key.
func FetchHostKey(addr string, timeout time.Duration) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)
	config := &ssh.ClientConfig{
		User: "apideploy-hostkey",
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			keyChan <- key
			return errors.New("host key retrieved")
		},
		Timeout: timeout,
	}

	conn, err := sshDial("tcp", CanonicalizeHostPort(addr), config)
	select {
	case key := <-keyChan:
		return key, nil
	default:
	}
	if err != nil {
		return nil, ClassifyConnectionError(addr, err)
	}
	_ = conn.Close()
	return nil, fmt.Errorf("handshake with %s completed without a host key", addr)
}

// IsKnownHost reports whether file already trusts key for addr.
func IsKnownHost(file, addr string, key ssh.PublicKey) (bool, error) {
	v, err := newHostKeyVerifier(file)
	if err != nil {
		return false, err
	}
	if v.callback == nil {
		return false, nil
	}
	return v.callback(addr, &net.TCPAddr{}, key) == nil, nil
}

// AddKnownHost appends a known_hosts line for addr, creating the file if needed.
func AddKnownHost(file, addr string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(file), err)
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts %s: %w", file, err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write known_hosts %s: %w", file, err)
	}
	return f.Close()
}

// HostKeyWarning returns a warning for host key types that are considered
// weak, or "" when the key type is fine.
func HostKeyWarning(key ssh.PublicKey) string {
	switch key.Type() {
	case ssh.KeyAlgoDSA:
		return "Warning: the host presents a DSA key, which modern OpenSSH no longer accepts."
	case ssh.KeyAlgoRSA:
		if ck, ok := key.(ssh.CryptoPublicKey); ok {
			if rk, ok := ck.CryptoPublicKey().(*rsa.PublicKey); ok && rk.N.BitLen() < 2048 {
				return fmt.Sprintf("Warning: the host RSA key is only %d bits.", rk.N.BitLen())
			}
		}
	}
	return ""
}
