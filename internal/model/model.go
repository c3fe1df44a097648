// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"path"
	"time"
)

// DeploymentTarget is the remote account a service is deployed to
// (e.g., api-projects-kde-org@drax.kde.org).
type DeploymentTarget struct {
	User        string
	Host        string
	Home        string
	BinPath     string
	SystemdPath string
}

// String returns the user@host representation.
func (t DeploymentTarget) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.Host)
}

// Remote returns the rsync/scp style destination user@host:dir.
func (t DeploymentTarget) Remote(dir string) string {
	return fmt.Sprintf("%s@%s:%s", t.User, t.Host, dir)
}

// Artifact is the locally built binary and the service it backs.
type Artifact struct {
	Binary  string
	Service string
}

// SocketUnit is the name of the socket unit that activates the service.
func (a Artifact) SocketUnit() string {
	return a.Service + ".socket"
}

// UnitFiles are the systemd unit files copied verbatim to the target.
type UnitFiles struct {
	Service string
	Socket  string
}

// UnitFilesFor returns the unit files for service inside dir.
func UnitFilesFor(dir, service string) UnitFiles {
	return UnitFiles{
		Service: path.Join(dir, service+".service"),
		Socket:  path.Join(dir, service+".socket"),
	}
}

// Paths returns the unit files in upload order.
func (u UnitFiles) Paths() []string {
	return []string{u.Service, u.Socket}
}

// StepKind groups steps by the collaborator that executes them.
type StepKind string

const (
	KindCheck    StepKind = "check"
	KindBuild    StepKind = "build"
	KindConnect  StepKind = "connect"
	KindTransfer StepKind = "transfer"
	KindRemote   StepKind = "remote"
	KindDocs     StepKind = "docs"
)

// Step names in pipeline order.
const (
	StepCheckInputs    = "check-inputs"
	StepBuild          = "build"
	StepConnect        = "connect"
	StepUploadBinary   = "upload-binary"
	StepPrepareUnitDir = "prepare-unit-dir"
	StepUploadUnits    = "upload-units"
	StepDaemonReload   = "daemon-reload"
	StepRestartSocket  = "restart-socket"
	StepBuildDocs      = "build-docs"
	StepUploadDocs     = "upload-docs"
)

// Step is one entry of a deployment plan.
type Step struct {
	Name     string
	Kind     StepKind
	Required bool
	// Description is the command or transfer the step performs, for display.
	Description string
}

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// StepResult records how a step went.
type StepResult struct {
	Step     Step
	Status   StepStatus
	Started  time.Time
	Finished time.Time
	Err      error
}

// Duration is how long the step ran.
func (r StepResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// DocsStatus describes what happened to the optional documentation step.
type DocsStatus string

const (
	DocsNotReached DocsStatus = ""
	DocsDisabled   DocsStatus = "disabled"
	DocsSkipped    DocsStatus = "skipped"
	DocsPublished  DocsStatus = "published"
	DocsUploadFail DocsStatus = "failed-upload"
)

// RunStatus is the overall outcome of a deployment.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunRecord is a journal entry for one deployment.
type RunRecord struct {
	ID       string       `json:"id"`
	Target   string       `json:"target"`
	Binary   string       `json:"binary"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Status   RunStatus    `json:"status"`
	Docs     DocsStatus   `json:"docs,omitempty"`
	Error    string       `json:"error,omitempty"`
	Steps    []StepRecord `json:"steps,omitempty"`
}

// StepRecord is the persisted form of a StepResult.
type StepRecord struct {
	Name     string     `json:"name"`
	Kind     StepKind   `json:"kind"`
	Status   StepStatus `json:"status"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
	Error    string     `json:"error,omitempty"`
}

// RecordOf converts a step result into its persisted form.
func RecordOf(r StepResult) StepRecord {
	rec := StepRecord{
		Name:     r.Step.Name,
		Kind:     r.Step.Kind,
		Status:   r.Status,
		Started:  r.Started,
		Finished: r.Finished,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
