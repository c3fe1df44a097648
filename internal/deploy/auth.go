// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/logging"
	"invent.kde.org/websites/apideploy/internal/security"
)

// KeyringService is the service name passphrases are stored under in the
// system keyring. The account is the identity file path.
const KeyringService = "apideploy"

// passphraseSource supplies the passphrase for an encrypted identity file.
// The caller zeroes it once the key is parsed. Tests replace it.
var passphraseSource = defaultPassphrase

func defaultPassphrase(keyPath string, useKeyring bool) (security.Secret, error) {
	if useKeyring {
		secret, err := keyring.Get(KeyringService, keyPath)
		if err == nil {
			return security.FromString(secret), nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			logging.Debugf("keyring lookup for %s failed: %v", keyPath, err)
		}
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase is available", keyPath)
	}
	fmt.Fprint(os.Stderr, i18n.T("passphrase.prompt", keyPath))
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return security.Secret(pass), nil
}

// loadIdentity parses one private key file. missing reports a file that
// does not exist so callers can skip it quietly.
func loadIdentity(path string, useKeyring bool) (signer ssh.Signer, missing bool, err error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to read identity %s: %w", path, err)
	}
	signer, err = ssh.ParsePrivateKey(pem)
	var missingPass *ssh.PassphraseMissingError
	if errors.As(err, &missingPass) {
		pass, perr := passphraseSource(path, useKeyring)
		if perr != nil {
			return nil, false, perr
		}
		err = pass.Use(func(b []byte) error {
			var perr error
			signer, perr = ssh.ParsePrivateKeyWithPassphrase(pem, b)
			return perr
		})
	}
	if err != nil {
		return nil, false, fmt.Errorf("unable to parse private key %s: %w", path, err)
	}
	return signer, false, nil
}

// authMethods assembles a single public key method offering identity file
// keys first and agent keys after them. The server sees one "publickey"
// method, which is how the ssh package tries multiple signers in order.
func authMethods(opts Options) (ssh.AuthMethod, func() error, error) {
	var signers []ssh.Signer
	for _, path := range opts.Identities {
		signer, missing, err := loadIdentity(path, opts.UseKeyring)
		if missing {
			continue
		}
		if err != nil {
			logging.Warnf("skipping identity: %v", err)
			continue
		}
		logging.Debugf("using identity %s (%s)", path, ssh.FingerprintSHA256(signer.PublicKey()))
		signers = append(signers, signer)
	}

	var closeAgent func() error
	if opts.UseAgent {
		if ag, closer := sshAgentGetter(); ag != nil {
			closeAgent = closer
			agentSigners, err := ag.Signers()
			if err != nil {
				logging.Warnf("failed to list ssh agent keys: %v", err)
			}
			signers = append(signers, agentSigners...)
		}
	}

	if len(signers) == 0 {
		if closeAgent != nil {
			_ = closeAgent()
		}
		return nil, nil, errors.New("no authentication method available (no usable identity file and no ssh agent keys)")
	}
	return ssh.PublicKeys(signers...), closeAgent, nil
}
