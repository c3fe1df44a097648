// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package pipeline runs a deployment: build the binary, ship it and its
// systemd units to the target, reload and restart the socket unit, then
// publish documentation on a best-effort basis.
//
// Steps run strictly in order. Any failure of a required step stops the run
// and is returned as a *StepError; nothing already done is undone. A failing
// documentation build ends the run early without an error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"invent.kde.org/websites/apideploy/internal/build"
	"invent.kde.org/websites/apideploy/internal/command"
	"invent.kde.org/websites/apideploy/internal/deploy"
	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/logging"
	"invent.kde.org/websites/apideploy/internal/model"
)

// Sentinels matched by StepError.Is according to the failing step's kind.
var (
	ErrInputs   = errors.New("local inputs missing")
	ErrBuild    = errors.New("build failed")
	ErrConnect  = errors.New("connection failed")
	ErrTransfer = errors.New("transfer failed")
	ErrRemote   = errors.New("remote command failed")
)

// StepError is returned when a required step fails.
type StepError struct {
	Step string
	Kind model.StepKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is matches the sentinel for the step's kind.
func (e *StepError) Is(target error) bool {
	switch target {
	case ErrInputs:
		return e.Kind == model.KindCheck
	case ErrBuild:
		return e.Kind == model.KindBuild
	case ErrConnect:
		return e.Kind == model.KindConnect
	case ErrTransfer:
		return e.Kind == model.KindTransfer
	case ErrRemote:
		return e.Kind == model.KindRemote
	}
	return false
}

// ConnectFunc opens the session used by every network step.
type ConnectFunc func(ctx context.Context) (deploy.Session, error)

// Recorder observes a run, typically to persist it. Its errors are logged
// and never change the outcome of the deployment.
type Recorder interface {
	BeginRun(ctx context.Context, run *model.RunRecord) error
	RecordStep(ctx context.Context, runID string, result model.StepResult) error
	FinishRun(ctx context.Context, run *model.RunRecord) error
}

// Docs configures the documentation step.
type Docs struct {
	Enabled bool
	// Dir is the local directory the documentation build writes.
	Dir string
}

// Pipeline holds everything a deployment needs.
type Pipeline struct {
	Target     model.DeploymentTarget
	Artifact   model.Artifact
	Units      model.UnitFiles
	Docs       Docs
	Builder    *build.Builder
	DocBuilder *build.DocBuilder
	Connect    ConnectFunc
	Recorder   Recorder

	now func() time.Time
}

// Result describes a finished run, successful or not.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// Steps holds the steps that ran, in order.
	Steps []model.StepResult
	Docs  model.DocsStatus
}

// Failed returns the failing step, if any.
func (r *Result) Failed() (model.StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == model.StatusFailed && s.Step.Required {
			return s, true
		}
	}
	return model.StepResult{}, false
}

func (p *Pipeline) docsEnabled() bool {
	return p.Docs.Enabled && p.DocBuilder != nil && len(p.DocBuilder.Command) > 0
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Steps returns the plan in execution order. Checking local inputs and
// connecting are implicit and not part of the plan.
func (p *Pipeline) Steps() []model.Step {
	var buildCmd string
	if p.Builder != nil {
		buildCmd = strings.Join(p.Builder.Args(p.Artifact.Binary), " ")
	}
	steps := []model.Step{
		{Name: model.StepBuild, Kind: model.KindBuild, Required: true, Description: buildCmd},
		{Name: model.StepUploadBinary, Kind: model.KindTransfer, Required: true,
			Description: transferDescription(p.Target.Remote(p.Target.BinPath), p.Artifact.Binary)},
		{Name: model.StepPrepareUnitDir, Kind: model.KindRemote, Required: true,
			Description: deploy.MkdirCommand(p.Target.SystemdPath)},
		{Name: model.StepUploadUnits, Kind: model.KindTransfer, Required: true,
			Description: transferDescription(p.Target.Remote(p.Target.SystemdPath), p.Units.Paths()...)},
		{Name: model.StepDaemonReload, Kind: model.KindRemote, Required: true,
			Description: deploy.DaemonReloadCommand},
		{Name: model.StepRestartSocket, Kind: model.KindRemote, Required: true,
			Description: deploy.RestartCommand(p.Artifact.SocketUnit())},
	}
	if p.docsEnabled() {
		steps = append(steps,
			model.Step{Name: model.StepBuildDocs, Kind: model.KindDocs,
				Description: command.Format(p.DocBuilder.Command[0], p.DocBuilder.Command[1:]...)},
			model.Step{Name: model.StepUploadDocs, Kind: model.KindDocs,
				Description: transferDescription(p.Target.Remote(p.Target.Home), p.Docs.Dir)},
		)
	}
	return steps
}

func transferDescription(dest string, sources ...string) string {
	return strings.Join(sources, " ") + " -> " + dest
}

func (p *Pipeline) step(name string) model.Step {
	for _, s := range p.Steps() {
		if s.Name == name {
			return s
		}
	}
	return model.Step{Name: name}
}

// Run executes the plan. The returned Result is never nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Started: p.clock()}
	run := &model.RunRecord{
		ID:      res.RunID,
		Target:  p.Target.String(),
		Binary:  p.Artifact.Binary,
		Started: res.Started,
		Status:  model.RunRunning,
	}
	if p.Recorder != nil {
		if err := p.Recorder.BeginRun(ctx, run); err != nil {
			logging.Warnf("journal: failed to record run start: %v", err)
		}
	}

	err := p.run(ctx, res)
	res.Finished = p.clock()

	if p.Recorder != nil {
		run.Finished = res.Finished
		run.Docs = res.Docs
		run.Status = model.RunSuccess
		if err != nil {
			run.Status = model.RunFailed
			run.Error = err.Error()
		}
		if ferr := p.Recorder.FinishRun(ctx, run); ferr != nil {
			logging.Warnf("journal: failed to record run result: %v", ferr)
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	if p.Builder == nil || p.Connect == nil {
		return errors.New("pipeline needs a builder and a connect function")
	}

	// Unit files are checked up front so a typo fails before anything is built.
	check := model.Step{Name: model.StepCheckInputs, Kind: model.KindCheck, Required: true,
		Description: strings.Join(p.Units.Paths(), " ")}
	if err := p.exec(ctx, res, check, func() error {
		for _, path := range p.Units.Paths() {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("unit file %s: %w", path, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := p.exec(ctx, res, p.step(model.StepBuild), func() error {
		return p.Builder.Build(ctx, p.Artifact.Binary)
	}); err != nil {
		return err
	}

	var session deploy.Session
	connect := model.Step{Name: model.StepConnect, Kind: model.KindConnect, Required: true, Description: p.Target.String()}
	if err := p.exec(ctx, res, connect, func() error {
		var err error
		session, err = p.Connect(ctx)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logging.Debugf("closing session: %v", err)
		}
	}()

	required := []struct {
		name string
		fn   func() error
	}{
		{model.StepUploadBinary, func() error { return session.Upload(ctx, p.Target.BinPath, p.Artifact.Binary) }},
		{model.StepPrepareUnitDir, func() error { return session.Run(ctx, deploy.MkdirCommand(p.Target.SystemdPath)) }},
		{model.StepUploadUnits, func() error { return session.Upload(ctx, p.Target.SystemdPath, p.Units.Paths()...) }},
		{model.StepDaemonReload, func() error { return session.Run(ctx, deploy.DaemonReloadCommand) }},
		{model.StepRestartSocket, func() error { return session.Run(ctx, deploy.RestartCommand(p.Artifact.SocketUnit())) }},
	}
	for _, s := range required {
		if err := p.exec(ctx, res, p.step(s.name), s.fn); err != nil {
			return err
		}
	}

	p.publishDocs(ctx, res, session)
	return nil
}

// publishDocs never fails the run. A failed documentation build skips the
// upload; a failed upload is only logged at debug level.
func (p *Pipeline) publishDocs(ctx context.Context, res *Result, session deploy.Session) {
	if !p.docsEnabled() {
		res.Docs = model.DocsDisabled
		logging.Debugf("%s", i18n.T("deploy.docs_disabled"))
		return
	}

	if err := p.exec(ctx, res, p.step(model.StepBuildDocs), func() error {
		return p.DocBuilder.Build(ctx)
	}); err != nil {
		res.Docs = model.DocsSkipped
		logging.Infof("%s", i18n.T("deploy.docs_skipped"))
		logging.Debugf("documentation build: %v", err)
		p.skip(ctx, res, p.step(model.StepUploadDocs))
		return
	}

	if err := p.exec(ctx, res, p.step(model.StepUploadDocs), func() error {
		return session.Upload(ctx, p.Target.Home, p.Docs.Dir)
	}); err != nil {
		res.Docs = model.DocsUploadFail
		logging.Debugf("documentation upload: %v", err)
		return
	}
	res.Docs = model.DocsPublished
	logging.Infof("%s", i18n.T("deploy.docs_published"))
}

// exec runs fn as step, records the outcome and wraps a failure in StepError.
func (p *Pipeline) exec(ctx context.Context, res *Result, step model.Step, fn func() error) error {
	logging.Step(step.Name, step.Description)
	sr := model.StepResult{Step: step, Started: p.clock()}
	err := fn()
	sr.Finished = p.clock()
	sr.Status = model.StatusOK
	if err != nil {
		sr.Status = model.StatusFailed
		sr.Err = err
	}
	p.appendResult(ctx, res, sr)
	if err != nil {
		return &StepError{Step: step.Name, Kind: step.Kind, Err: err}
	}
	return nil
}

func (p *Pipeline) skip(ctx context.Context, res *Result, step model.Step) {
	now := p.clock()
	p.appendResult(ctx, res, model.StepResult{Step: step, Status: model.StatusSkipped, Started: now, Finished: now})
}

func (p *Pipeline) appendResult(ctx context.Context, res *Result, sr model.StepResult) {
	res.Steps = append(res.Steps, sr)
	if p.Recorder == nil {
		return
	}
	if err := p.Recorder.RecordStep(ctx, res.RunID, sr); err != nil {
		logging.Warnf("journal: failed to record step %s: %v", sr.Step.Name, err)
	}
}
