/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package tui

import (
	"sync"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"traindispatcher/internal/config"
)

// Styles is one palette.
type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	OK       lipgloss.Style
	Active   lipgloss.Style
	Box      lipgloss.Style
	Table    table.Styles
	Focused  lipgloss.Style
	Inactive lipgloss.Style
}

// Theme implements app.ThemeApplier for the terminal.
type Theme struct {
	mu     sync.Mutex
	name   string
	styles Styles
}

func NewTheme() *Theme {
	return &Theme{name: config.ThemeSystem, styles: palette(config.ThemeSystem)}
}

func (t *Theme) SetOverride(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name, t.styles = name, palette(name)
}

// ClearOverride falls back to colors that adapt to the terminal background.
func (t *Theme) ClearOverride() { t.SetOverride(config.ThemeSystem) }

func (t *Theme) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Theme) Styles() Styles {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.styles
}

func palette(name string) Styles {
	var accent, muted, fg, bg, errc, okc lipgloss.TerminalColor
	bold := false
	switch name {
	case config.ThemeLight:
		accent, muted, fg, bg = lipgloss.Color("25"), lipgloss.Color("245"), lipgloss.Color("235"), lipgloss.Color("254")
		errc, okc = lipgloss.Color("160"), lipgloss.Color("28")
	case config.ThemeDark:
		accent, muted, fg, bg = lipgloss.Color("75"), lipgloss.Color("241"), lipgloss.Color("252"), lipgloss.Color("236")
		errc, okc = lipgloss.Color("203"), lipgloss.Color("42")
	case config.ThemeHighContrast:
		accent, muted, fg, bg = lipgloss.Color("226"), lipgloss.Color("15"), lipgloss.Color("15"), lipgloss.Color("0")
		errc, okc = lipgloss.Color("196"), lipgloss.Color("46")
		bold = true
	default:
		accent = lipgloss.AdaptiveColor{Light: "25", Dark: "75"}
		muted = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
		fg = lipgloss.AdaptiveColor{Light: "235", Dark: "252"}
		bg = lipgloss.AdaptiveColor{Light: "254", Dark: "236"}
		errc = lipgloss.AdaptiveColor{Light: "160", Dark: "203"}
		okc = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	}

	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(muted).
		BorderBottom(true).
		Bold(true).
		Foreground(accent)
	ts.Cell = ts.Cell.Foreground(fg).Bold(bold)
	ts.Selected = ts.Selected.Foreground(bg).Background(accent).Bold(true)

	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		Header:   lipgloss.NewStyle().Bold(true).Foreground(fg),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		Error:    lipgloss.NewStyle().Bold(true).Foreground(errc),
		OK:       lipgloss.NewStyle().Foreground(okc).Bold(bold),
		Active:   lipgloss.NewStyle().Bold(true).Foreground(bg).Background(accent).Padding(0, 1),
		Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
		Table:    ts,
		Focused:  lipgloss.NewStyle().Foreground(accent).Bold(true),
		Inactive: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
	}
}
