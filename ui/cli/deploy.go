// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"invent.kde.org/websites/apideploy/internal/build"
	"invent.kde.org/websites/apideploy/internal/command"
	"invent.kde.org/websites/apideploy/internal/config"
	"invent.kde.org/websites/apideploy/internal/deploy"
	"invent.kde.org/websites/apideploy/internal/history"
	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/logging"
	"invent.kde.org/websites/apideploy/internal/model"
	"invent.kde.org/websites/apideploy/internal/pipeline"
)

// newRunner and newConnector are package-level so tests can inject fakes.
var newRunner = func(cmd *cobra.Command) command.Runner {
	r := command.NewExecRunner()
	r.Stdout = cmd.OutOrStdout()
	r.Stderr = cmd.ErrOrStderr()
	return r
}

var newConnector = func(cfg config.Config, runner command.Runner, opts deploy.Options) pipeline.ConnectFunc {
	return func(ctx context.Context) (deploy.Session, error) {
		logging.Infof("%s", i18n.T("deploy.connecting", opts.Target.String(), cfg.Transport))
		if cfg.Transport == config.TransportOpenSSH {
			return deploy.NewOpenSSH(runner, opts), nil
		}
		c, err := deploy.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// resolvedTarget returns the deployment target with any port written into
// target.host moved out of the host. That port wins over ssh.port. Invalid
// hosts are returned as configured so the connect step reports them.
func resolvedTarget(cfg config.Config) (model.DeploymentTarget, int) {
	t := cfg.DeploymentTarget()
	host, port, err := deploy.ResolveEndpoint(t.Host, cfg.SSH.Port)
	if err != nil {
		return t, cfg.SSH.Port
	}
	t.Host = host
	return t, port
}

// sshOptions translates configuration into connection options.
func sshOptions(cfg config.Config, cmd *cobra.Command) deploy.Options {
	target, port := resolvedTarget(cfg)
	identities := make([]string, 0, len(cfg.SSH.Identity))
	for _, id := range cfg.SSH.Identity {
		identities = append(identities, config.ExpandHome(id))
	}
	return deploy.Options{
		Target:         target,
		Port:           port,
		Identities:     identities,
		KnownHosts:     config.ExpandHome(cfg.SSH.KnownHosts),
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		UseAgent:       cfg.SSH.UseAgent,
		UseKeyring:     cfg.SSH.UseKeyring,
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
		Progress:       cmd.ErrOrStderr(),
	}
}

// newPipeline assembles the deployment from configuration. The returned
// cleanup closes the journal, if one was opened.
func newPipeline(ctx context.Context, cmd *cobra.Command, cfg config.Config) (*pipeline.Pipeline, func()) {
	runner := newRunner(cmd)
	target, _ := resolvedTarget(cfg)
	p := &pipeline.Pipeline{
		Target:     target,
		Artifact:   cfg.ArtifactSpec(),
		Units:      cfg.UnitFiles(),
		Docs:       pipeline.Docs{Enabled: cfg.Docs.Enabled, Dir: cfg.Docs.Dir},
		Builder:    &build.Builder{Runner: runner, Command: cfg.Build.Command},
		DocBuilder: &build.DocBuilder{Runner: runner, Command: cfg.Docs.Command},
		Connect:    newConnector(cfg, runner, sshOptions(cfg, cmd)),
	}

	cleanup := func() {}
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Type, cfg.History.DSN)
		if err != nil {
			logging.Warnf("journal disabled for this run: %v", err)
		} else {
			p.Recorder = store
			cleanup = func() {
				if err := store.Close(); err != nil {
					logging.Debugf("closing journal: %v", err)
				}
			}
		}
	}
	return p, cleanup
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		p, cleanup := newPipeline(ctx, cmd, withoutHistory(appConfig))
		defer cleanup()
		printPlan(cmd.OutOrStdout(), p)
		return nil
	}

	p, cleanup := newPipeline(ctx, cmd, appConfig)
	defer cleanup()

	logging.Infof("%s", i18n.T("deploy.starting", p.Artifact.Binary, p.Target.String()))
	res, err := p.Run(ctx)
	printSummary(cmd.OutOrStdout(), p.Steps(), res)

	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		logging.StepFailed(stepErr.Step, stepErr.Err)
		return errors.New(i18n.T("deploy.failed", stepErr.Step, stepErr.Err))
	}
	if err != nil {
		return err
	}
	logging.Infof("%s", i18n.T("deploy.success", p.Artifact.Binary, p.Target.String()))
	return nil
}

func withoutHistory(cfg config.Config) config.Config {
	cfg.History.Enabled = false
	return cfg
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the deployment steps and the commands they run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cleanup := newPipeline(cmd.Context(), cmd, withoutHistory(appConfig))
			defer cleanup()
			printPlan(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func printPlan(w io.Writer, p *pipeline.Pipeline) {
	fmt.Fprintln(w, titleStyle.Render(i18n.T("deploy.dry_run_header", p.Target.String())))
	for i, s := range p.Steps() {
		marker := requiredStyle.Render("required")
		if !s.Required {
			marker = optionalStyle.Render("optional")
		}
		fmt.Fprintf(w, "%2d. %-18s %s  %s\n", i+1, s.Name, marker, s.Description)
	}
}
