// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"invent.kde.org/websites/apideploy/internal/config"
	"invent.kde.org/websites/apideploy/internal/history"
	"invent.kde.org/websites/apideploy/internal/model"
)

func stubHostKey(t *testing.T, fetchErr error) (ssh.PublicKey, *[]string) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	var addrs []string
	orig := fetchHostKey
	fetchHostKey = func(addr string, _ time.Duration) (ssh.PublicKey, error) {
		addrs = append(addrs, addr)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return key, nil
	}
	t.Cleanup(func() { fetchHostKey = orig })
	return key, &addrs
}

func TestTrustHost(t *testing.T) {
	h := newHarness(t)
	key, addrs := stubHostKey(t, nil)
	knownHosts := filepath.Join(h.dir, ".ssh", "known_hosts")

	out, err := execute(t, "no\n", "trust-host")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, ssh.FingerprintSHA256(key)) || !strings.Contains(out, "Cancelled.") {
		t.Errorf("declined prompt output:\n%s", out)
	}
	if _, err := os.Stat(knownHosts); !os.IsNotExist(err) {
		t.Fatalf("declining must not write known_hosts: %v", err)
	}

	out, err = execute(t, "yes\n", "trust-host")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Permanently added 'drax.kde.org:22'") {
		t.Errorf("accepted prompt output:\n%s", out)
	}
	data, err := os.ReadFile(knownHosts)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "drax.kde.org ssh-ed25519 ") {
		t.Errorf("known_hosts = %q", data)
	}

	out, err = execute(t, "", "trust-host")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already trusted") {
		t.Errorf("second run output:\n%s", out)
	}
	if len(*addrs) != 3 || (*addrs)[0] != "drax.kde.org:22" {
		t.Errorf("fetched from %q", *addrs)
	}
}

func TestTrustHostExplicitTargetAndPort(t *testing.T) {
	newHarness(t)
	_, addrs := stubHostKey(t, nil)

	if _, err := execute(t, "yes\n", "trust-host", "deploy@[2001:db8::1]:2222"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "yes\n", "trust-host", "example.org"); err != nil {
		t.Fatal(err)
	}
	want := []string{"[2001:db8::1]:2222", "example.org:22"}
	if strings.Join(*addrs, ",") != strings.Join(want, ",") {
		t.Errorf("fetched from %q, want %q", *addrs, want)
	}
}

func TestTrustHostFetchFailure(t *testing.T) {
	newHarness(t)
	stubHostKey(t, errors.New("connection refused"))

	_, err := execute(t, "", "trust-host")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestConfigInitRoundTrip(t *testing.T) {
	h := newHarness(t)
	t.Setenv("APIDEPLOY_TARGET_HOST", "written.kde.org")

	out, err := execute(t, "", "config", "init")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(h.dir, "xdg", "apideploy", "apideploy.yaml")
	if !strings.Contains(out, path) {
		t.Errorf("output %q does not name %s", out, path)
	}

	os.Unsetenv("APIDEPLOY_TARGET_HOST")
	cfg, err := config.LoadConfig[config.Config](nil, config.Defaults(), &path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Host != "written.kde.org" || cfg.Artifact.Service != svc || cfg.SSH.ConnectTimeout != 10*time.Second {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestHistoryDisabled(t *testing.T) {
	newHarness(t)
	for _, args := range [][]string{{"history", "list"}, {"history", "export", "out.zst"}} {
		out, err := execute(t, "", args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		if !strings.Contains(out, "journal is disabled") {
			t.Errorf("%v output = %q", args, out)
		}
	}
	if _, err := os.Stat("out.zst"); !os.IsNotExist(err) {
		t.Error("export must not create a file while the journal is disabled")
	}
}

func TestHistoryRecordsDeployments(t *testing.T) {
	h := newHarness(t)
	t.Setenv("APIDEPLOY_HISTORY_ENABLED", "true")
	t.Setenv("APIDEPLOY_HISTORY_DSN", filepath.Join(h.dir, "journal.db"))

	out, err := execute(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No deployments recorded.") {
		t.Errorf("empty journal output = %q", out)
	}

	if _, err := execute(t, "", "--skip-docs"); err != nil {
		t.Fatal(err)
	}
	h.session.RunErr = map[string]error{"systemctl --user daemon-reload": errors.New("dbus unavailable")}
	if _, err := execute(t, "", "--skip-docs"); err == nil {
		t.Fatal("expected second deployment to fail")
	}

	out, err = execute(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "success") || !strings.Contains(out, "failed") || !strings.Contains(out, "dbus unavailable") {
		t.Errorf("history list output:\n%s", out)
	}

	exportPath := filepath.Join(h.dir, "export.json.zst")
	out, err = execute(t, "", "history", "export", exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Exported 2 runs") {
		t.Errorf("export output = %q", out)
	}
	f, err := os.Open(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	exp, err := history.ReadExport(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(exp.Runs) != 2 || exp.Runs[0].Status != model.RunFailed || exp.Runs[1].Status != model.RunSuccess {
		t.Fatalf("exported runs = %+v", exp.Runs)
	}
	if got := len(exp.Runs[1].Steps); got != 8 {
		t.Errorf("successful run recorded %d steps, want the input check, connect and six planned steps", got)
	}

	t.Setenv("APIDEPLOY_HISTORY_ENABLED", "false")
	out, err = execute(t, "", "history", "list", "--file", exportPath, "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "dbus unavailable") || strings.Contains(out, "success") {
		t.Errorf("history list --file output:\n%s", out)
	}
	if _, err := execute(t, "", "history", "list", "--file", filepath.Join(h.dir, "absent.zst")); err == nil {
		t.Error("expected error for a missing export file")
	}
}

func TestTrustHostPortInConfiguredHost(t *testing.T) {
	newHarness(t)
	t.Setenv("APIDEPLOY_TARGET_HOST", "drax.kde.org:2222")
	t.Setenv("APIDEPLOY_SSH_PORT", "2200")
	_, addrs := stubHostKey(t, nil)

	if _, err := execute(t, "no\n", "trust-host"); err != nil {
		t.Fatal(err)
	}
	if len(*addrs) != 1 || (*addrs)[0] != "drax.kde.org:2222" {
		t.Errorf("fetched from %q, want drax.kde.org:2222", *addrs)
	}
}
