/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package app composes the pages of the dispatcher admin: the dashboard,
// the admin overview, the database configuration page and the per-layout
// detail page. Pages are headless controllers; internal/ui and
// internal/tui render them.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"traindispatcher/internal/api"
	"traindispatcher/internal/config"
	"traindispatcher/internal/entity"
	applog "traindispatcher/internal/log"
)

// ThemeApplier switches the renderer's look. ClearOverride returns to the
// system theme.
type ThemeApplier interface {
	SetOverride(theme string)
	ClearOverride()
}

// Options carries everything the app needs.
type Options struct {
	Client *api.Client
	Config config.AppConfig
	Theme  ThemeApplier
	// SaveConfig persists a changed config. Nil writes the YAML file.
	SaveConfig func(config.AppConfig) error
}

// App owns the router and the option cache shared by all pages.
type App struct {
	client *api.Client
	cache  *entity.Cache
	router *Router
	theme  ThemeApplier
	save   func(config.AppConfig) error
	log    *slog.Logger

	mu  sync.Mutex
	cfg config.AppConfig
}

// New builds the app and applies the configured theme.
func New(opts Options) (*App, error) {
	if opts.Client == nil {
		return nil, errors.New("app: client is required")
	}
	save := opts.SaveConfig
	if save == nil {
		save = func(c config.AppConfig) error { return config.Save(c, "") }
	}
	a := &App{
		client: opts.Client,
		cache:  entity.NewCache(),
		router: NewRouter(Page(opts.Config.General.StartPage)),
		theme:  opts.Theme,
		save:   save,
		log:    applog.WithComponent("app"),
		cfg:    opts.Config,
	}
	registerSources(a.cache, a.client)
	a.applyTheme(a.cfg.General.Theme)
	return a, nil
}

func (a *App) Client() *api.Client  { return a.client }
func (a *App) Cache() *entity.Cache { return a.cache }
func (a *App) Router() *Router      { return a.router }

// Config returns a copy of the current configuration.
func (a *App) Config() config.AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Theme returns the selected theme.
func (a *App) Theme() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.General.Theme == "" {
		return config.ThemeSystem
	}
	return a.cfg.General.Theme
}

// SetTheme applies and persists theme. The system theme clears the override.
func (a *App) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if !config.ValidTheme(theme) {
		return fmt.Errorf("unknown theme %q", theme)
	}
	a.mu.Lock()
	a.cfg.General.Theme = theme
	cfg := a.cfg
	a.mu.Unlock()

	a.applyTheme(theme)
	if err := a.save(cfg); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	a.log.Info("theme changed", slog.String("theme", theme))
	return nil
}

func (a *App) applyTheme(theme string) {
	if a.theme == nil {
		return
	}
	if theme == "" || theme == config.ThemeSystem {
		a.theme.ClearOverride()
		return
	}
	a.theme.SetOverride(theme)
}

// Manager mounts a manager for a global table. Close it on unmount.
func (a *App) Manager(cfg entity.Config) *entity.Manager {
	return entity.NewManager(cfg, a.cache)
}
