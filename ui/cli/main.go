// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"invent.kde.org/websites/apideploy/internal/config"
	"invent.kde.org/websites/apideploy/internal/i18n"
	"invent.kde.org/websites/apideploy/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var appConfig config.Config

// setupDefaultServices loads configuration and initializes logging and i18n
// for every command.
func setupDefaultServices(cmd *cobra.Command, _ []string) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logging.SetDebug(true)
	}

	configPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}
	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), configPath)
	if err != nil {
		return errors.New(i18n.T("config.error_load", err))
	}
	if skip, _ := cmd.Flags().GetBool("skip-docs"); skip {
		appConfig.Docs.Enabled = false
	}
	i18n.Init(appConfig.Language)
	return appConfig.Validate()
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// Execute runs the CLI entrypoint. main should call this and handle the
// process exit.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command with all subcommands attached. Tests
// call it for fresh, isolated command trees.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apideploy",
		Short: "Build and deploy the api.kde.org service over SSH",
		Long: `apideploy builds the service binary, copies it and its systemd user units
to the target host, reloads systemd and restarts the socket unit. Afterwards
it builds and uploads the documentation if that succeeds.

Running without a subcommand performs the full deployment.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupDefaultServices,
		RunE:              runDeploy,
	}

	v, c, d := resolveBuildVersion(nil)
	compositeVersion := v
	if c != "" && c != "dev" {
		compositeVersion = compositeVersion + " (" + c + ")"
	}
	if d != "" {
		compositeVersion = compositeVersion + " built: " + d
	}
	cmd.Version = compositeVersion
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("version", "V", false, "Print version and exit")
	cmd.PersistentFlags().String("config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `Message language ("en", "de")`)

	cmd.Flags().Bool("dry-run", false, "Print the deployment plan without running it")
	cmd.Flags().Bool("skip-docs", false, "Do not build or upload documentation")
	cmd.Flags().String("transport", config.TransportNative, `Transport to use ("native" or "openssh")`)

	cmd.AddCommand(
		newPlanCmd(),
		newTrustHostCmd(),
		newConfigCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		// Printing the version must work without a valid configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

// promptForConfirmation displays a prompt and reads one answer line.
func promptForConfirmation(in io.Reader, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(strings.ToLower(answer))
}
