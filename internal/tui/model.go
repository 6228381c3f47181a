/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package tui renders the app pages in a terminal with Bubble Tea. CRUD
// calls run as tea.Cmds; their results come back as messages and the
// mounted page redraws from its managers.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"traindispatcher/internal/app"
	"traindispatcher/internal/config"
	"traindispatcher/internal/entity"
	applog "traindispatcher/internal/log"
)

type loadedMsg struct{ err error }

type doneMsg struct {
	text string
	err  error
}

type infoMsg struct{ lines []string }

type intervalMsg struct {
	minutes int
	last    string
}

type submittedMsg struct {
	mgr *entity.Manager
	err error
}

func failed(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	return func() tea.Msg { return doneMsg{err: err} }
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx   context.Context
	app   *app.App
	theme *Theme
	log   *slog.Logger

	page     app.Page
	layoutID int64
	screen   screen
	menuOpen bool
	status   string
	errText  string
}

// New mounts the router's current page.
func New(ctx context.Context, a *app.App, theme *Theme) *Model {
	if theme == nil {
		theme = NewTheme()
	}
	m := &Model{ctx: ctx, app: a, theme: theme, log: applog.WithComponent("tui")}
	m.mount()
	return m
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, a *app.App, theme *Theme) error {
	p := tea.NewProgram(New(ctx, a, theme), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// mount replaces the screen when the router moved.
func (m *Model) mount() tea.Cmd {
	page, id := m.app.Router().Current()
	if m.screen != nil && page == m.page && id == m.layoutID {
		return nil
	}
	if m.screen != nil {
		m.screen.close()
	}
	m.page, m.layoutID = page, id
	st := m.theme.Styles()
	switch page {
	case app.PageAdmin:
		m.screen = &adminScreen{page: m.app.Admin()}
	case app.PageAdminConfig:
		m.screen = newConfig(m.app, st)
	case app.PageLayout:
		s, err := newLayout(m.app, id, st)
		if err != nil {
			m.errText = err.Error()
			_ = m.app.Router().Navigate(app.PageDashboard)
			return m.mount()
		}
		m.screen = s
	default:
		m.screen = newDashboard(m.app, st)
	}
	m.log.Debug("page mounted", slog.String("page", string(page)), slog.Int64("layout", id))
	return m.screen.load(m.ctx)
}

func (m *Model) Init() tea.Cmd { return m.screen.load(m.ctx) }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.key(msg)
	case loadedMsg:
		m.setResult("", msg.err)
	case doneMsg:
		m.setResult(msg.text, msg.err)
	case submittedMsg:
		if msg.err == nil {
			m.setResult("Saved.", nil)
		}
	case intervalMsg:
		if cs, ok := m.screen.(*configScreen); ok {
			cs.editInterval(m.ctx, msg)
		}
	}
	m.screen.handle(msg, m.theme.Styles())
	return m, m.mount()
}

func (m *Model) setResult(text string, err error) {
	if err != nil {
		m.errText, m.status = err.Error(), ""
		return
	}
	m.errText, m.status = "", text
}

func (m *Model) key(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	if m.screen.capturing() {
		return tea.Batch(m.screen.key(m.ctx, msg), m.mount())
	}
	if m.menuOpen {
		m.menuOpen = false
		entries := app.Menu()
		if k := msg.String(); len(k) == 1 && k[0] >= '1' && int(k[0]-'1') < len(entries) {
			i := int(k[0] - '1')
			if err := m.app.Router().Navigate(entries[i].Target); err != nil {
				m.setResult("", err)
			}
			return m.mount()
		}
		return nil
	}
	switch msg.String() {
	case "q":
		return tea.Quit
	case "m":
		m.menuOpen = true
		return nil
	case "T":
		next := nextTheme(m.app.Theme())
		if err := m.app.SetTheme(next); err != nil {
			m.setResult("", err)
		} else {
			m.setResult("Theme: "+next, nil)
		}
		m.screen.handle(nil, m.theme.Styles())
		return nil
	}
	return tea.Batch(m.screen.key(m.ctx, msg), m.mount())
}

func nextTheme(cur string) string {
	for i, t := range config.Themes {
		if t == cur {
			return config.Themes[(i+1)%len(config.Themes)]
		}
	}
	return config.ThemeSystem
}

func (m *Model) View() string {
	st := m.theme.Styles()
	var b strings.Builder
	b.WriteString(st.Title.Render("Train Dispatcher Admin"))
	b.WriteString(st.Muted.Render(fmt.Sprintf("   theme: %s   m: menu • T: theme • q: quit", m.app.Theme())))
	b.WriteString("\n")
	if m.menuOpen {
		var items []string
		for i, e := range app.Menu() {
			items = append(items, fmt.Sprintf("%d. %s", i+1, e.Label))
		}
		b.WriteString(st.Box.Render(strings.Join(items, "\n")) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.screen.view(st))
	b.WriteString("\n")
	if m.errText != "" {
		b.WriteString(st.Error.Render(m.errText) + "\n")
	} else if m.status != "" {
		b.WriteString(st.OK.Render(m.status) + "\n")
	}
	return b.String()
}
