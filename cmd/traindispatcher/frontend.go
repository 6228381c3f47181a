/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"traindispatcher/internal/api"
	"traindispatcher/internal/app"
	"traindispatcher/internal/config"
	applog "traindispatcher/internal/log"
	"traindispatcher/internal/shell"
	"traindispatcher/internal/tui"
	"traindispatcher/internal/ui"
)

// FrontendLogFile is the frontend's log file inside the data dir.
const FrontendLogFile = "frontend.log"

// frontend is everything a renderer needs: the config, an app builder and
// the optional backend child.
type frontend struct {
	cfg      config.AppConfig
	client   *api.Client
	launcher *shell.Launcher
	crashed  atomic.Pointer[error]
	log      *slog.Logger
}

// newFrontend loads the config, sets up logging and decides how the client
// finds the backend. --backend-url skips the shell. quiet keeps log lines
// and the backend's output off the terminal.
func newFrontend(flags *globalFlags, quiet bool, cancel context.CancelFunc) (*frontend, error) {
	cfg, dbURL, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.Shell.DataDir = flags.dataDir
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}

	logOpts := applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, AddSource: cfg.Logging.Source, File: cfg.Logging.File}
	if quiet {
		logOpts.Console = io.Discard
		if logOpts.File == "" {
			logOpts.File = filepath.Join(dataDir, FrontendLogFile)
		}
	}
	applog.Init(logOpts)

	f := &frontend{cfg: cfg, log: applog.WithComponent("cli")}
	ropts := resolverOptions(cfg, flags.backendURL)
	if flags.backendURL == "" {
		sopts, err := shell.FromConfig(cfg, dbURL)
		if err != nil {
			return nil, err
		}
		if quiet {
			sopts.Stdout, sopts.Stderr = io.Discard, io.Discard
		}
		sopts.OnExit = func(err error) {
			f.crashed.Store(&err)
			cancel()
		}
		f.launcher = shell.New(sopts)
		ropts.Bridge = shell.NewBridge(f.launcher)
	}
	f.client = api.NewClient(api.NewResolver(ropts), cfg.Backend.EffectiveTimeout())
	return f, nil
}

// resolverOptions maps the backend config; an explicit URL wins over the
// configured one.
func resolverOptions(cfg config.AppConfig, backendURL string) api.ResolverOptions {
	override := strings.TrimSpace(backendURL)
	if override == "" {
		override = cfg.Backend.BaseURL
	}
	return api.ResolverOptions{
		Override:  override,
		ProbeHost: cfg.Backend.ProbeHost,
		ProbePort: cfg.Backend.ProbePort,
		Discovery: cfg.Backend.Discovery,
	}
}

func (f *frontend) build(theme app.ThemeApplier) (*app.App, error) {
	return app.New(app.Options{
		Client: f.client,
		Config: f.cfg,
		Theme:  theme,
		SaveConfig: func(c config.AppConfig) error {
			return config.Save(c, "")
		},
	})
}

// finish stops the backend child and turns a backend crash into the
// command's error.
func (f *frontend) finish(runErr error) error {
	if f.launcher != nil {
		if err := f.launcher.Stop(); err != nil {
			f.log.Warn("stop backend", slog.Any("err", err))
		}
	}
	if p := f.crashed.Load(); p != nil {
		return *p
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func runFrontend(cmd *cobra.Command, flags *globalFlags, quiet bool, render func(ctx context.Context, f *frontend) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f, err := newFrontend(flags, quiet, cancel)
	if err != nil {
		return err
	}
	defer func() { _ = applog.Close() }()
	return f.finish(render(ctx, f))
}

func newUICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the desktop window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFrontend(cmd, flags, false, func(ctx context.Context, f *frontend) error {
				return ui.Run(ctx, f.build)
			})
		},
	}
}

func newTUICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFrontend(cmd, flags, true, func(ctx context.Context, f *frontend) error {
				theme := tui.NewTheme()
				a, err := f.build(theme)
				if err != nil {
					return err
				}
				return tui.Run(ctx, a, theme)
			})
		},
	}
}
