// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"invent.kde.org/websites/apideploy/internal/security"
)

func TestEncryptedIdentityUsesPassphraseSource(t *testing.T) {
	withoutAgent(t)
	dir := t.TempDir()
	identity, pub := writeIdentity(t, dir, "hunter2")
	srv := newTestServer(t, pub)
	known := writeKnownHosts(t, dir, srv.addr, srv.hostKey.PublicKey())

	var asked []string
	orig := passphraseSource
	var handed security.Secret
	passphraseSource = func(path string, useKeyring bool) (security.Secret, error) {
		asked = append(asked, path)
		if !useKeyring {
			t.Errorf("expected keyring lookup to be requested")
		}
		handed = security.FromString("hunter2")
		return handed, nil
	}
	t.Cleanup(func() { passphraseSource = orig })

	opts := testOptions(srv, identity, known)
	opts.UseKeyring = true
	c, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c.Close()
	if len(asked) != 1 || asked[0] != identity {
		t.Errorf("passphrase asked for %q", asked)
	}
	for _, b := range handed {
		if b != 0 {
			t.Fatal("passphrase was not wiped after parsing the key")
		}
	}
}

func TestEncryptedIdentityWithoutPassphraseIsSkipped(t *testing.T) {
	withoutAgent(t)
	dir := t.TempDir()
	identity, _ := writeIdentity(t, dir, "hunter2")

	orig := passphraseSource
	passphraseSource = func(string, bool) (security.Secret, error) { return nil, errors.New("no passphrase") }
	t.Cleanup(func() { passphraseSource = orig })

	_, _, err := authMethods(Options{Identities: []string{identity}})
	if err == nil {
		t.Fatal("expected error when the only identity cannot be decrypted")
	}
}

func TestAuthMethodsFallsBackToAgent(t *testing.T) {
	keyring := agent.NewKeyring()
	pub, priv := mustKey(t)
	if err := keyring.Add(agent.AddedKey{PrivateKey: priv}); err != nil {
		t.Fatalf("add key to agent: %v", err)
	}
	srv := newTestServer(t, pub)

	closed := false
	orig := sshAgentGetter
	sshAgentGetter = func() (agent.Agent, func() error) {
		return keyring, func() error { closed = true; return nil }
	}
	t.Cleanup(func() { sshAgentGetter = orig })

	dir := t.TempDir()
	known := writeKnownHosts(t, dir, srv.addr, srv.hostKey.PublicKey())
	opts := testOptions(srv, "", known)
	opts.Identities = nil
	opts.UseAgent = true
	c, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("Dial with agent: %v", err)
	}
	c.Close()
	if !closed {
		t.Error("agent connection was not released")
	}
}

func TestLoadIdentityMissingFile(t *testing.T) {
	signer, missing, err := loadIdentity(t.TempDir()+"/none", false)
	if signer != nil || !missing || err != nil {
		t.Fatalf("loadIdentity = %v, %v, %v", signer, missing, err)
	}
}

func TestLoadIdentityGarbage(t *testing.T) {
	p := t.TempDir() + "/bad"
	writeFile(t, p, "not a key")
	_, missing, err := loadIdentity(p, false)
	if missing || err == nil {
		t.Fatalf("expected parse error, got missing=%v err=%v", missing, err)
	}
}

func mustKey(t *testing.T) (ssh.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	return sshPub, priv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
