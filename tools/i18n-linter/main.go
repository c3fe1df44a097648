// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message ID passed to i18n.T exists in the
// primary locale, that every other locale translates all of them, and
// reports primary keys no code refers to.
//
// Usage, from the repository root:
//
//	go run ./tools/i18n-linter
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

var tCall = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

type location struct {
	file string
	line int
}

type report struct {
	primary string
	// undefined maps keys used in code but absent from the primary locale
	// to where they are used.
	undefined map[string][]location
	orphaned  []string
	// missing maps a secondary locale file to the primary keys it lacks.
	missing map[string][]string
}

func (r *report) failed() bool {
	if len(r.undefined) > 0 {
		return true
	}
	for _, keys := range r.missing {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

func main() {
	r, err := lint(".", localesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-linter: %v\n", err)
		os.Exit(2)
	}
	r.print(os.Stdout)
	if r.failed() {
		os.Exit(1)
	}
}

func lint(root, locales string) (*report, error) {
	used, err := findUsedKeys(root)
	if err != nil {
		return nil, fmt.Errorf("scanning sources: %w", err)
	}
	primaryPath := filepath.Join(locales, primaryLocale)
	primary, err := loadKeysFromLocale(primaryPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", primaryPath, err)
	}

	r := &report{primary: primaryPath, undefined: map[string][]location{}, missing: map[string][]string{}}
	for key, locs := range used {
		if _, ok := primary[key]; !ok {
			r.undefined[key] = locs
		}
	}
	for key := range primary {
		if _, ok := used[key]; !ok {
			r.orphaned = append(r.orphaned, key)
		}
	}
	sort.Strings(r.orphaned)

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if filepath.Base(file) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(file)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
		var missing []string
		for key := range primary {
			if _, ok := keys[key]; !ok {
				missing = append(missing, key)
			}
		}
		sort.Strings(missing)
		r.missing[file] = missing
	}
	return r, nil
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "--- Keys used in code but not defined in %s ---\n", r.primary)
	if len(r.undefined) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, key := range sortedKeys(r.undefined) {
		loc := r.undefined[key][0]
		fmt.Fprintf(w, "  - %s (%s:%d)\n", key, loc.file, loc.line)
	}

	files := make([]string, 0, len(r.missing))
	for f := range r.missing {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		fmt.Fprintf(w, "--- Keys missing from %s ---\n", f)
		if len(r.missing[f]) == 0 {
			fmt.Fprintln(w, "  none")
		}
		for _, key := range r.missing[f] {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}

	fmt.Fprintln(w, "--- Orphaned keys ---")
	if len(r.orphaned) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, key := range r.orphaned {
		fmt.Fprintf(w, "  - %s\n", key)
	}
}

// findUsedKeys scans non-test Go files below root for i18n.T calls with a
// literal message ID. Hidden, underscore-prefixed, testdata and tools
// directories are skipped.
func findUsedKeys(root string) (map[string][]location, error) {
	keys := make(map[string][]location)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "tools") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(content), "\n") {
			for _, m := range tCall.FindAllStringSubmatch(line, -1) {
				keys[m[1]] = append(keys[m[1]], location{file: path, line: i + 1})
			}
		}
		return nil
	})
	return keys, err
}

// loadKeysFromLocale reads a YAML locale and returns its message IDs.
// Nested maps are flattened with dots, so "a: {b: x}" and "a.b: x" both
// yield "a.b".
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, val := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		flattenYAML(k, val, keys)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
