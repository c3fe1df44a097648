// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package security wraps sensitive bytes, such as identity passphrases, so
// they are redacted when printed or logged and can be wiped after use.
package security

import (
	"encoding/json"
	"fmt"
	"io"
)

const redacted = "[SECRET]"

// Secret holds sensitive material. Formatting and encoding it never reveals
// the contents.
type Secret []byte

// FromString copies s into a new Secret.
func FromString(s string) Secret { return Secret([]byte(s)) }

func (s Secret) String() string { return redacted }

// Format implements fmt.Formatter so every verb is redacted.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// Bytes returns a copy of the underlying bytes.
func (s Secret) Bytes() []byte {
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// Zero overwrites the secret in place.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	clear(*s)
}

// Use calls fn with the underlying bytes and zeroes them afterwards.
func (s *Secret) Use(fn func([]byte) error) error {
	defer s.Zero()
	return fn([]byte(*s))
}

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
