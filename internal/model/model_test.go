// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"testing"
	"time"
)

func TestDeploymentTargetString(t *testing.T) {
	tg := DeploymentTarget{User: "api-projects-kde-org", Host: "drax.kde.org"}
	if got := tg.String(); got != "api-projects-kde-org@drax.kde.org" {
		t.Errorf("unexpected DeploymentTarget.String(): %q", got)
	}
	if got := tg.Remote("/home/api-projects-kde-org/bin/"); got != "api-projects-kde-org@drax.kde.org:/home/api-projects-kde-org/bin/" {
		t.Errorf("unexpected DeploymentTarget.Remote(): %q", got)
	}
}

func TestUnitFilesFor(t *testing.T) {
	u := UnitFilesFor("systemd", "api-projects-kde-org")
	if u.Service != "systemd/api-projects-kde-org.service" {
		t.Errorf("unexpected service unit: %q", u.Service)
	}
	if u.Socket != "systemd/api-projects-kde-org.socket" {
		t.Errorf("unexpected socket unit: %q", u.Socket)
	}
	paths := u.Paths()
	if len(paths) != 2 || paths[0] != u.Service || paths[1] != u.Socket {
		t.Errorf("unexpected upload order: %v", paths)
	}
}

func TestArtifactSocketUnit(t *testing.T) {
	a := Artifact{Binary: "api-projects-kde-org.git", Service: "api-projects-kde-org"}
	if got := a.SocketUnit(); got != "api-projects-kde-org.socket" {
		t.Errorf("unexpected socket unit: %q", got)
	}
}

func TestStepResultDuration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := StepResult{Started: start, Finished: start.Add(1500 * time.Millisecond)}
	if got := r.Duration(); got != 1500*time.Millisecond {
		t.Errorf("unexpected duration: %v", got)
	}
}

func TestRecordOf(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		result  StepResult
		wantErr string
	}{
		{"ok", StepResult{Step: Step{Name: StepBuild, Kind: KindBuild}, Status: StatusOK, Started: start, Finished: start.Add(time.Second)}, ""},
		{"failed", StepResult{Step: Step{Name: StepDaemonReload, Kind: KindRemote}, Status: StatusFailed, Started: start, Finished: start, Err: errString("exit status 1")}, "exit status 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := RecordOf(tt.result)
			if rec.Name != tt.result.Step.Name || rec.Kind != tt.result.Step.Kind || rec.Status != tt.result.Status {
				t.Errorf("unexpected record: %+v", rec)
			}
			if !rec.Started.Equal(tt.result.Started) || !rec.Finished.Equal(tt.result.Finished) {
				t.Errorf("times not preserved: %+v", rec)
			}
			if rec.Error != tt.wantErr {
				t.Errorf("Error = %q, want %q", rec.Error, tt.wantErr)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
