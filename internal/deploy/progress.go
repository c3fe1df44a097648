// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// transferProgress counts bytes written through it. On a terminal it draws
// a bar that is redrawn in place; elsewhere it prints one line per file.
type transferProgress struct {
	out     io.Writer
	name    string
	total   int64
	written int64
	started time.Time
	tty     bool
	bar     progress.Model
	lastPct int
}

func newTransferProgress(out io.Writer, name string, total int64) *transferProgress {
	p := &transferProgress{
		out:     out,
		name:    name,
		total:   total,
		started: time.Now(),
		lastPct: -1,
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	}
	return p
}

func (p *transferProgress) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.tty {
		if pct := p.percent(); int(pct*100) != p.lastPct {
			p.lastPct = int(pct * 100)
			p.render(pct)
		}
	}
	return len(b), nil
}

func (p *transferProgress) percent() float64 {
	if p.total <= 0 {
		return 1
	}
	pct := float64(p.written) / float64(p.total)
	if pct > 1 {
		pct = 1
	}
	return pct
}

func (p *transferProgress) render(pct float64) {
	fmt.Fprintf(p.out, "\r%s %s %s/%s", p.bar.ViewAs(pct), p.name,
		humanize.Bytes(uint64(p.written)), humanize.Bytes(uint64(p.total)))
}

// Done finishes the progress line.
func (p *transferProgress) Done() {
	elapsed := time.Since(p.started).Round(time.Millisecond)
	if p.tty {
		p.render(p.percent())
		fmt.Fprintf(p.out, " %s\n", elapsed)
		return
	}
	fmt.Fprintf(p.out, "%s %s in %s\n", p.name, humanize.Bytes(uint64(p.written)), elapsed)
}
