// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"bytes"
	"strings"
	"testing"
)

func TestTransferProgressPercent(t *testing.T) {
	tests := []struct {
		total, written int64
		want           float64
	}{
		{0, 0, 1},
		{100, 0, 0},
		{100, 50, 0.5},
		{100, 150, 1},
	}
	for _, tt := range tests {
		p := &transferProgress{total: tt.total, written: tt.written}
		if got := p.percent(); got != tt.want {
			t.Errorf("percent(%d/%d) = %v, want %v", tt.written, tt.total, got, tt.want)
		}
	}
}

func TestTransferProgressPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := newTransferProgress(&buf, "api.bin", 2000)
	if p.tty {
		t.Fatal("a buffer is not a terminal")
	}
	_, _ = p.Write(make([]byte, 1500))
	if buf.Len() != 0 {
		t.Errorf("plain progress must stay quiet until Done, got %q", buf.String())
	}
	p.Done()
	if !strings.HasPrefix(buf.String(), "api.bin 1.5 kB in ") {
		t.Errorf("summary = %q", buf.String())
	}
}
