// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"context"
	"strings"
	"sync"

	"invent.kde.org/websites/apideploy/internal/command"
)

// Journal records operations from several fakes in the order they happen.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends one entry.
func (j *Journal) Add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of everything recorded so far.
func (j *Journal) Entries() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// FakeRunner is a command.Runner that records invocations instead of
// starting processes. Entries are "exec: <command line>".
type FakeRunner struct {
	Journal *Journal
	// Fail maps a program name to the error its invocation returns.
	Fail map[string]error
	// OnRun, if set, runs before Fail is consulted; a non-nil return wins.
	OnRun func(name string, args []string) error

	mu    sync.Mutex
	calls [][]string
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	f.Journal.Add("exec: " + command.Format(name, args...))

	if f.OnRun != nil {
		if err := f.OnRun(name, args); err != nil {
			return err
		}
	}
	if err, ok := f.Fail[name]; ok {
		return err
	}
	return nil
}

// Calls returns each invocation as name followed by its arguments.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// Upload is one recorded transfer.
type Upload struct {
	Dir     string
	Sources []string
}

// FakeSession stands in for an SSH session. Uploads are journalled as
// "upload: <dir> <- <sources>" and commands as "run: <command>".
type FakeSession struct {
	Journal *Journal
	// UploadErr maps a remote directory to the error uploading into it returns.
	UploadErr map[string]error
	// RunErr maps a command to the error running it returns.
	RunErr map[string]error
	// CloseErr is returned from Close.
	CloseErr error

	mu       sync.Mutex
	uploads  []Upload
	commands []string
	closed   bool
}

func (f *FakeSession) Upload(_ context.Context, dir string, sources ...string) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, Upload{Dir: dir, Sources: append([]string(nil), sources...)})
	f.mu.Unlock()
	f.Journal.Add("upload: " + dir + " <- " + strings.Join(sources, " "))
	return f.UploadErr[dir]
}

func (f *FakeSession) Run(_ context.Context, cmd string) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	f.Journal.Add("run: " + cmd)
	return f.RunErr[cmd]
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.CloseErr
}

// Uploads returns the recorded transfers.
func (f *FakeSession) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

// Commands returns the recorded remote commands.
func (f *FakeSession) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Closed reports whether Close was called.
func (f *FakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
