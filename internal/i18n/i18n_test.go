// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import "testing"

func TestT_BasicAndFormatting(t *testing.T) {
	Init("en")

	if got := T("trust_host.cancelled"); got != "Cancelled." {
		t.Fatalf("expected 'Cancelled.', got %q", got)
	}

	got := T("deploy.starting", "api-projects-kde-org.git", "api-projects-kde-org@drax.kde.org")
	if got != "Deploying api-projects-kde-org.git to api-projects-kde-org@drax.kde.org" {
		t.Fatalf("unexpected formatted translation: %q", got)
	}

	Init("de")
	if got := T("trust_host.cancelled"); got != "Abgebrochen." {
		t.Fatalf("expected German 'Abgebrochen.', got %q", got)
	}
	Init("en")
}

func TestT_UnknownIDAndLanguage(t *testing.T) {
	Init("xx")
	if got := T("summary.title"); got != "Deployment summary" {
		t.Fatalf("expected English fallback, got %q", got)
	}
	if got := T("no.such.message"); got != "no.such.message" {
		t.Fatalf("expected message ID fallback, got %q", got)
	}
	Init("en")
}

// Every message in the English catalogue must exist in the German one.
func TestLocalesHaveSameKeys(t *testing.T) {
	Init("de")
	defer Init("en")
	ids := []string{
		"deploy.starting", "deploy.success", "deploy.failed", "deploy.docs_skipped",
		"deploy.docs_disabled", "deploy.docs_published", "deploy.dry_run_header",
		"deploy.connecting", "trust_host.fetching", "trust_host.unknown",
		"trust_host.fingerprint", "trust_host.confirm", "trust_host.cancelled",
		"trust_host.added", "trust_host.already_known", "trust_host.error_get_key",
		"history.disabled", "history.empty", "history.exported", "config.written",
		"config.error_load", "summary.title", "passphrase.prompt",
	}
	for _, id := range ids {
		if got := T(id); got == id {
			t.Errorf("message %q missing from de catalogue", id)
		}
	}
}
