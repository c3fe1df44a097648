// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/model"
	"invent.kde.org/websites/apideploy/internal/pipeline"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	skipStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	requiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	optionalStyle = dimStyle
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func statusLabel(s model.StepStatus) string {
	switch s {
	case model.StatusOK:
		return okStyle.Render("ok")
	case model.StatusFailed:
		return failStyle.Render("failed")
	case model.StatusSkipped:
		return skipStyle.Render("skipped")
	}
	return dimStyle.Render("not run")
}

// printSummary renders every planned step with its outcome. Steps the run
// never reached are shown as "not run".
func printSummary(w io.Writer, plan []model.Step, res *pipeline.Result) {
	if res == nil {
		return
	}
	results := make(map[string]model.StepResult, len(res.Steps))
	for _, r := range res.Steps {
		results[r.Step.Name] = r
	}

	var lines []string
	lines = append(lines, titleStyle.Render(i18n.T("summary.title")))
	add := func(name string, r model.StepResult, ran bool) {
		status := statusLabel("")
		dur := ""
		if ran {
			status = statusLabel(r.Status)
			dur = dimStyle.Render(r.Duration().Round(time.Millisecond).String())
		}
		line := fmt.Sprintf("%-18s %s %s", name, status, dur)
		if r.Err != nil {
			line += "\n  " + dimStyle.Render(r.Err.Error())
		}
		lines = append(lines, strings.TrimRight(line, " "))
	}

	if c, ok := results[model.StepCheckInputs]; ok {
		add(model.StepCheckInputs, c, true)
	}
	for _, s := range plan {
		r, ran := results[s.Name]
		add(s.Name, r, ran)
		if s.Name == model.StepBuild {
			if c, ok := results[model.StepConnect]; ok {
				add(model.StepConnect, c, true)
			}
		}
	}
	if res.Docs != model.DocsNotReached {
		lines = append(lines, dimStyle.Render("docs: "+string(res.Docs)))
	}
	lines = append(lines, dimStyle.Render("run "+res.RunID))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
