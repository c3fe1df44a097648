// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"invent.kde.org/websites/apideploy/internal/history"
	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/model"
)

var errHistoryDisabled = errors.New("deployment journal disabled")

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	if !appConfig.History.Enabled {
		fmt.Fprintln(cmd.OutOrStdout(), i18n.T("history.disabled"))
		return nil, errHistoryDisabled
	}
	return history.Open(cmd.Context(), appConfig.History.Type, appConfig.History.DSN)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the deployment journal",
	}

	var (
		limit int
		file  string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent deployments",
		Long: `Lists recent deployments from the journal. With --file the runs are
read from a file written by 'history export' instead, which works without a
configured journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				return listExport(cmd.OutOrStdout(), file, limit)
			}
			store, err := openHistory(cmd)
			if errors.Is(err, errHistoryDisabled) {
				return nil
			}
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	listCmd.Flags().StringVar(&file, "file", "", "Read runs from an exported journal file")

	exportCmd := &cobra.Command{
		Use:   "export [output-file]",
		Short: "Export the journal as zstd-compressed JSON",
		Long: `Writes every recorded deployment as zstd-compressed JSON. Without an
output file a timestamped name in the working directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if errors.Is(err, errHistoryDisabled) {
				return nil
			}
			if err != nil {
				return err
			}
			defer store.Close()

			name := fmt.Sprintf("apideploy-history-%s.json.zst", time.Now().Format("20060102-150405"))
			if len(args) == 1 {
				name = args[0]
			}
			f, err := os.Create(name)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			n, err := store.Export(cmd.Context(), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("history.exported", n, name))
			return nil
		},
	}

	cmd.AddCommand(listCmd, exportCmd)
	return cmd
}

func printRuns(w io.Writer, runs []model.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, i18n.T("history.empty"))
		return
	}
	for _, r := range runs {
		status := okStyle.Render(string(r.Status))
		if r.Status != model.RunSuccess {
			status = failStyle.Render(string(r.Status))
		}
		fmt.Fprintf(w, "%s  %s  %-8s %s -> %s", r.Started.Local().Format(time.DateTime), r.ID[:min(8, len(r.ID))], status, r.Binary, r.Target)
		if r.Docs != "" {
			fmt.Fprintf(w, "  docs:%s", r.Docs)
		}
		fmt.Fprintln(w)
		if r.Error != "" {
			fmt.Fprintln(w, "    "+dimStyle.Render(r.Error))
		}
	}
}

// listExport prints the runs of an exported journal, newest first.
func listExport(w io.Writer, name string, limit int) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := history.ReadExport(f)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	runs := data.Runs
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	printRuns(w, runs)
	return nil
}
