// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"invent.kde.org/websites/apideploy/internal/config"
	"invent.kde.org/websites/apideploy/internal/deploy"
	"invent.kde.org/websites/apideploy/internal/i18n"
)

// fetchHostKey is a package-level variable so tests can avoid the network.
var fetchHostKey = deploy.FetchHostKey

// newTrustHostCmd creates the 'trust-host' command. It fetches a host's
// public key, shows its fingerprint and, once confirmed, records it in the
// known_hosts file used for deployments.
func newTrustHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust-host [user@host]",
		Short: "Add the target host's key to known_hosts",
		Long: `Connects to a host, retrieves its public key and asks for confirmation
before appending it to the known_hosts file. The native transport refuses
hosts whose keys are not known, so run this once before the first deployment.
Without an argument the configured target host is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := appConfig.Target.Host
			if len(args) == 1 {
				target = args[0]
			}
			host, port, err := deploy.ResolveEndpoint(target, appConfig.SSH.Port)
			if err != nil {
				return err
			}
			addr := deploy.JoinHostPort(host, strconv.Itoa(port), "22")
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, i18n.T("trust_host.fetching", addr))
			key, err := fetchHostKey(addr, deploy.DefaultHostKeyTimeout)
			if err != nil {
				return errors.New(i18n.T("trust_host.error_get_key", err))
			}

			file := config.ExpandHome(appConfig.SSH.KnownHosts)
			known, err := deploy.IsKnownHost(file, addr, key)
			if err != nil {
				return err
			}
			if known {
				fmt.Fprintln(out, i18n.T("trust_host.already_known", addr, file))
				return nil
			}

			fmt.Fprintln(out, i18n.T("trust_host.unknown", addr))
			fmt.Fprintln(out, i18n.T("trust_host.fingerprint", ssh.FingerprintSHA256(key)))
			if warn := deploy.HostKeyWarning(key); warn != "" {
				fmt.Fprintln(out, warn)
			}

			ans := promptForConfirmation(cmd.InOrStdin(), out, i18n.T("trust_host.confirm"))
			if ans != "yes" && ans != "y" {
				fmt.Fprintln(out, i18n.T("trust_host.cancelled"))
				return nil
			}
			if err := deploy.AddKnownHost(file, addr, key); err != nil {
				return err
			}
			fmt.Fprintln(out, i18n.T("trust_host.added", addr, file))
			return nil
		},
	}
}
