/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"traindispatcher/internal/config"
	"traindispatcher/internal/server"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	backendURL string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "traindispatcher",
		Short:        "Model railroad dispatcher administration",
		Long:         "Train Dispatcher manages layouts, districts, dispatchers, modules, endplates and trains.\nThe ui and tui commands start a private backend unless --backend-url points at a running one.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.backendURL, "backend-url", "", "use a running backend instead of starting one")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory for the database and logs")

	root.AddCommand(
		newUICmd(flags),
		newTUICmd(flags),
		newServerCmd(flags),
		newVersionCmd(),
	)
	return root
}

// dataDirForCrash picks the crash report folder before flags are parsed.
func dataDirForCrash() string {
	for i, a := range os.Args {
		if v, ok := strings.CutPrefix(a, "--data-dir="); ok {
			return v
		}
		if a == "--data-dir" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	if v := os.Getenv(server.EnvDataDir); v != "" {
		return v
	}
	if d, err := config.DefaultDataDir(); err == nil {
		return d
	}
	return ""
}
