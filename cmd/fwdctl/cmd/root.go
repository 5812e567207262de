// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cobaal/fwdsync/cmd/fwdctl/cmdimpl"
	"github.com/cobaal/fwdsync/cmd/fwdctl/remote"
)

const defaultServer = "localhost:9191"

var (
	server       string
	clientConfig string
	lastEvents   int
	verbose      bool
)

func newClient() (*remote.HTTPClient, error) {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	return remote.CreateHTTPClient(server, clientConfig)
}

var cmdHistory = &cobra.Command{
	Use:   "history",
	Short: "Show history of events processed by the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return cmdimpl.PrintHistory(client, os.Stdout, lastEvents)
	},
}

var cmdResync = &cobra.Command{
	Use:   "resync",
	Short: "Trigger full reconciliation of all devices",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return cmdimpl.Resync(client, os.Stdout)
	},
}

var cmdRules = &cobra.Command{
	Use:   "rules [device]",
	Short: "Show installed forwarding rules",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		var device string
		if len(args) == 1 {
			device = args[0]
		}
		return cmdimpl.PrintRules(client, os.Stdout, device)
	},
}

var cmdLastRun = &cobra.Command{
	Use:   "last-run",
	Short: "Show report of the last reconciliation pass",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return cmdimpl.PrintLastRun(client, os.Stdout)
	},
}

var cmdTopology = &cobra.Command{
	Use:   "topology",
	Short: "Show devices and links known to the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return cmdimpl.PrintTopology(client, os.Stdout)
	},
}

// Execute will execute the fwdctl command.
func Execute() {
	var rootCmd = &cobra.Command{
		Use:           "fwdctl",
		Short:         "Inspect and control the fwdsync agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", defaultServer,
		"address (host:port) of the agent REST API")
	rootCmd.PersistentFlags().StringVar(&clientConfig, "http-client-config", "",
		"path to the HTTP client configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests sent to the agent")
	cmdHistory.Flags().IntVarP(&lastEvents, "last", "n", 0, "show only the last N events")

	rootCmd.AddCommand(cmdHistory)
	rootCmd.AddCommand(cmdResync)
	rootCmd.AddCommand(cmdRules)
	rootCmd.AddCommand(cmdLastRun)
	rootCmd.AddCommand(cmdTopology)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
