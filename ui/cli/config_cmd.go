// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"invent.kde.org/websites/apideploy/internal/config"
	"invent.kde.org/websites/apideploy/internal/i18n"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the apideploy configuration file",
	}

	var system bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Long: `Writes the configuration currently in effect (defaults merged with any
file, environment and flags) to the user config path, or with --system to
the system-wide path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.GetConfigPath(system)
			if err != nil {
				return err
			}
			if err := config.WriteConfigFile(&appConfig, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "Write the system-wide configuration instead of the user one")

	cmd.AddCommand(initCmd)
	return cmd
}
