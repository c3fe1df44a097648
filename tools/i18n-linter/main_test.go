// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFlattenYAML(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"l.yaml": "deploy.starting: \"x\"\nnested:\n  inner: \"y\"\n",
	})
	keys, err := loadKeysFromLocale(filepath.Join(root, "l.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]struct{}{"deploy.starting": {}, "nested.inner": {}}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestLint(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/a.go":         "package pkg\nfunc f() {\n\t_ = i18n.T(\"a.used\")\n\t_ = i18n.T(\"a.undefined\", 1)\n}\n",
		"pkg/a_test.go":    "package pkg\nvar _ = i18n.T(\"a.from_test\")\n",
		"_examples/x/b.go": "package x\nvar _ = i18n.T(\"b.ignored\")\n",
		"tools/lint/c.go":  "package lint\nvar _ = i18n.T(\"c.ignored\")\n",
	})
	locales := filepath.Join(root, localesDir)
	writeTree(t, locales, map[string]string{
		"en.yaml": "a.used: \"u\"\na.orphan: \"o\"\n",
		"de.yaml": "a.orphan: \"o\"\n",
	})

	r, err := lint(root, locales)
	if err != nil {
		t.Fatal(err)
	}
	if got := sortedKeys(r.undefined); !reflect.DeepEqual(got, []string{"a.undefined"}) {
		t.Errorf("undefined = %v", got)
	}
	if loc := r.undefined["a.undefined"][0]; loc.line != 4 || !strings.HasSuffix(loc.file, filepath.Join("pkg", "a.go")) {
		t.Errorf("location = %+v", loc)
	}
	if !reflect.DeepEqual(r.orphaned, []string{"a.orphan"}) {
		t.Errorf("orphaned = %v", r.orphaned)
	}
	de := filepath.Join(locales, "de.yaml")
	if !reflect.DeepEqual(r.missing[de], []string{"a.used"}) {
		t.Errorf("missing = %v", r.missing)
	}
	if !r.failed() {
		t.Error("report with undefined keys must fail")
	}

	var buf bytes.Buffer
	r.print(&buf)
	for _, want := range []string{"a.undefined (", "- a.used", "- a.orphan"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestLintRepositoryLocales(t *testing.T) {
	r, err := lint("../..", "../../"+localesDir)
	if err != nil {
		t.Fatal(err)
	}
	if r.failed() {
		var buf bytes.Buffer
		r.print(&buf)
		t.Fatalf("locale files are inconsistent:\n%s", buf.String())
	}
}
