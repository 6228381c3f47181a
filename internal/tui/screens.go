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
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"traindispatcher/internal/app"
)

// screen is one mounted page.
type screen interface {
	load(ctx context.Context) tea.Cmd
	key(ctx context.Context, msg tea.KeyMsg) tea.Cmd
	// handle sees every non-key message, e.g. to refresh tables.
	handle(msg tea.Msg, st Styles)
	view(st Styles) string
	capturing() bool
	close()
}

// prompt is a one-line input with a callback.
type prompt struct {
	label string
	input textinput.Model
	run   func(value string) tea.Cmd
}

func newPrompt(label, value string, run func(string) tea.Cmd) *prompt {
	in := newInput(value)
	in.Focus()
	return &prompt{label: label, input: in, run: run}
}

// key returns done=true when the prompt closed.
func (p *prompt) key(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return nil, true
	case "enter":
		return p.run(strings.TrimSpace(p.input.Value())), true
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return cmd, false
}

func (p *prompt) view(st Styles) string {
	return st.Box.Render(st.Focused.Render(p.label+": ")+p.input.View()) + "\n"
}

// dashboard

type dashboardScreen struct {
	page   *app.Dashboard
	search textinput.Model
	typing bool
	table  table.Model
}

func newDashboard(a *app.App, st Styles) *dashboardScreen {
	s := &dashboardScreen{
		page:   a.Dashboard(),
		search: newInput(""),
		table: table.New(
			table.WithFocused(true),
			table.WithHeight(tableHeight),
			table.WithStyles(st.Table),
			table.WithColumns([]table.Column{
				{Title: "ID", Width: 4}, {Title: "Name", Width: 24}, {Title: "City", Width: 16},
				{Title: "State", Width: 5}, {Title: "Start", Width: 10}, {Title: "End", Width: 10},
			}),
		),
	}
	s.search.Placeholder = "Search by name, city, state, or date..."
	return s
}

func (s *dashboardScreen) load(ctx context.Context) tea.Cmd {
	page := s.page
	return func() tea.Msg { return loadedMsg{err: page.Load(ctx)} }
}

func (s *dashboardScreen) refresh() {
	layouts := s.page.Layouts(s.search.Value())
	rows := make([]table.Row, 0, len(layouts))
	for _, l := range layouts {
		rows = append(rows, table.Row{strconv.FormatInt(l.ID, 10), l.Name, l.LocationCity, l.LocationState, l.StartDate, l.EndDate})
	}
	s.table.SetRows(rows)
	if len(rows) > 0 && s.table.Cursor() >= len(rows) {
		s.table.SetCursor(len(rows) - 1)
	}
}

func (s *dashboardScreen) capturing() bool { return s.typing }
func (s *dashboardScreen) close()          { s.page.Close() }

func (s *dashboardScreen) handle(_ tea.Msg, st Styles) {
	s.table.SetStyles(st.Table)
	s.refresh()
}

func (s *dashboardScreen) key(_ context.Context, msg tea.KeyMsg) tea.Cmd {
	if s.typing {
		switch msg.String() {
		case "esc", "enter":
			s.typing = false
			s.search.Blur()
		default:
			var cmd tea.Cmd
			s.search, cmd = s.search.Update(msg)
			s.refresh()
			return cmd
		}
		return nil
	}
	switch msg.String() {
	case "/":
		s.typing = true
		s.search.Focus()
	case "n":
		return failed(s.page.CreateLayout())
	case "enter":
		row := s.table.SelectedRow()
		if len(row) == 0 {
			return nil
		}
		id, _ := strconv.ParseInt(row[0], 10, 64)
		return failed(s.page.Select(id))
	default:
		var cmd tea.Cmd
		s.table, cmd = s.table.Update(msg)
		return cmd
	}
	return nil
}

func (s *dashboardScreen) view(st Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("App Dashboard") + "\n")
	fe, be := s.page.Versions()
	fmt.Fprintf(&b, "%s %s   %s %s\n\n", st.Header.Render("Frontend Version:"), fe, st.Header.Render("Backend Version:"), be)
	if e := s.page.Err(); e != "" {
		b.WriteString(st.Error.Render(e) + "\n")
	}
	if s.page.Empty() {
		b.WriteString(st.Error.Render(app.NoLayoutsMessage) + "\n")
		b.WriteString(st.Muted.Render("n: Create Layout!") + "\n")
		return b.String()
	}
	b.WriteString(st.OK.Render(app.HasLayoutsMessage) + "\n")
	b.WriteString(st.Muted.Render("Search: ") + s.search.View() + "\n")
	if len(s.table.Rows()) == 0 {
		b.WriteString(st.Muted.Render(app.NoMatchMessage) + "\n")
	} else {
		b.WriteString(s.table.View() + "\n")
	}
	b.WriteString(st.Muted.Render("/: search • enter: open layout • n: create layout"))
	return b.String()
}

// admin overview

type adminScreen struct{ page *app.Admin }

func (s *adminScreen) load(ctx context.Context) tea.Cmd {
	page := s.page
	return func() tea.Msg { return loadedMsg{err: page.Load(ctx)} }
}

func (s *adminScreen) handle(tea.Msg, Styles) {}
func (s *adminScreen) capturing() bool        { return false }
func (s *adminScreen) close()                 {}

func (s *adminScreen) key(_ context.Context, msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "c" {
		return failed(s.page.OpenConfig())
	}
	return nil
}

func (s *adminScreen) view(st Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("System Admin") + "\n")
	if e := s.page.ErrText(); e != "" {
		b.WriteString(st.Error.Render(e) + "\n")
	}
	status, ok := s.page.Status()
	fe, be := app.UnknownVersionText, app.UnknownVersionText
	if ok {
		fe, be = nonEmpty(status.FrontendVersion), nonEmpty(status.BackendVersion)
	}
	fmt.Fprintf(&b, "%s %s\n", st.Header.Render("Frontend Version:"), fe)
	fmt.Fprintf(&b, "%s %s\n", st.Header.Render("Backend Version:"), be)
	fmt.Fprintf(&b, "%s %s\n", st.Header.Render("Backend IP Addresses:"), s.page.IPs())
	if ok {
		kinds := make([]string, 0, len(status.ServiceCounts))
		for k, n := range status.ServiceCounts {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "%s %s\n", st.Header.Render("Records:"), strings.Join(kinds, " "))
		if status.Message != "" {
			b.WriteString(st.Muted.Render(status.Message) + "\n")
		}
		b.WriteString("\n" + st.Header.Render("Log") + "\n")
		for _, l := range status.Logs {
			b.WriteString(st.Muted.Render(l) + "\n")
		}
	}
	b.WriteString("\n" + st.Muted.Render("c: Go to Configuration"))
	return b.String()
}

func nonEmpty(s string) string {
	if s == "" {
		return app.UnknownVersionText
	}
	return s
}

// configuration page

type configScreen struct {
	page   *app.ConfigPage
	panes  []*pane
	tab    int
	prompt *prompt
	info   []string
	reset  bool // awaiting reset confirmation
}

func newConfig(a *app.App, st Styles) *configScreen {
	s := &configScreen{page: a.ConfigPage()}
	for _, m := range s.page.Managers() {
		s.panes = append(s.panes, newPane(m, st))
	}
	return s
}

func (s *configScreen) load(ctx context.Context) tea.Cmd {
	page := s.page
	return func() tea.Msg { return loadedMsg{err: page.Load(ctx)} }
}

func (s *configScreen) handle(msg tea.Msg, st Styles) {
	if sm, ok := msg.(submittedMsg); ok {
		for _, p := range s.panes {
			p.submitted(sm)
		}
	}
	if im, ok := msg.(infoMsg); ok {
		s.info = im.lines
	}
	for _, p := range s.panes {
		p.refresh(st)
	}
}

func (s *configScreen) capturing() bool {
	return s.prompt != nil || s.panes[s.tab].capturing()
}

func (s *configScreen) close() { s.page.Close() }

func (s *configScreen) key(ctx context.Context, msg tea.KeyMsg) tea.Cmd {
	if s.prompt != nil {
		cmd, done := s.prompt.key(msg)
		if done {
			s.prompt = nil
		}
		return cmd
	}
	cur := s.panes[s.tab]
	if cur.capturing() || cur.confirm != 0 {
		return cur.key(ctx, msg)
	}
	if s.reset {
		s.reset = false
		if msg.String() != "y" {
			return nil
		}
		page := s.page
		return func() tea.Msg {
			text, err := page.ResetDB(ctx)
			return doneMsg{text: text, err: err}
		}
	}
	page := s.page
	switch msg.String() {
	case "right", "l", "]":
		s.tab = (s.tab + 1) % len(s.panes)
	case "left", "h", "[":
		s.tab = (s.tab - 1 + len(s.panes)) % len(s.panes)
	case "i":
		s.prompt = newPrompt("Import database from file", "", func(path string) tea.Cmd {
			return func() tea.Msg {
				text, err := page.ImportDB(ctx, path)
				return doneMsg{text: text, err: err}
			}
		})
	case "x":
		s.prompt = newPrompt("Export database to file", "dispatcher_db_export.db", func(path string) tea.Cmd {
			return func() tea.Msg {
				n, err := page.ExportDB(ctx, path)
				return doneMsg{text: fmt.Sprintf("Exported %d bytes to %s.", n, path), err: err}
			}
		})
	case "R":
		s.reset = true
	case "o":
		return func() tea.Msg {
			lines, err := page.Orphans(ctx)
			if err != nil {
				return doneMsg{err: err}
			}
			out := []string{fmt.Sprintf("%d orphan record(s)", len(lines))}
			for _, o := range lines {
				out = append(out, fmt.Sprintf("%s #%d: %s -> missing #%d", o.Kind, o.ID, o.Field, o.MissingID))
			}
			return infoMsg{lines: out}
		}
	case "O":
		return func() tea.Msg {
			n, err := page.DeleteOrphans(ctx)
			return doneMsg{text: fmt.Sprintf("Cleaned up %d orphan record(s).", n), err: err}
		}
	case "t":
		return func() tea.Msg {
			n, err := page.OrphanInterval(ctx)
			if err != nil {
				return doneMsg{err: err}
			}
			last, err := page.LastOrphanCheck(ctx)
			if err != nil {
				return doneMsg{err: err}
			}
			return intervalMsg{minutes: n, last: last}
		}
	case "s":
		return func() tea.Msg {
			lines, err := page.SchemaSummary(ctx)
			if err != nil {
				return doneMsg{err: err}
			}
			return infoMsg{lines: lines}
		}
	default:
		return cur.key(ctx, msg)
	}
	return nil
}

// editInterval opens the interval prompt seeded with the current value.
func (s *configScreen) editInterval(ctx context.Context, msg intervalMsg) {
	page := s.page
	s.info = []string{"Last orphan check: " + msg.last}
	s.prompt = newPrompt("Orphan check interval in minutes (0 disables)", strconv.Itoa(msg.minutes), func(v string) tea.Cmd {
		return func() tea.Msg {
			n, err := strconv.Atoi(v)
			if err != nil {
				return doneMsg{err: fmt.Errorf("interval %q is not a number", v)}
			}
			return doneMsg{text: fmt.Sprintf("Orphan check every %d minute(s).", n), err: page.SetOrphanInterval(ctx, n)}
		}
	})
}

func (s *configScreen) view(st Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("Database Tables (CRUD)") + "\n")
	tabs := make([]string, len(s.panes))
	for i, p := range s.panes {
		name := p.mgr.Config().Name
		if i == s.tab {
			tabs[i] = st.Active.Render(name)
		} else {
			tabs[i] = st.Inactive.Render(name)
		}
	}
	b.WriteString(strings.Join(tabs, "") + "\n\n")
	b.WriteString(s.panes[s.tab].view(st, s.panes[s.tab].mgr.Config().Name))
	if s.reset {
		b.WriteString(st.Error.Render("Reset the database? All records are lost. (y/n)") + "\n")
	}
	if s.prompt != nil {
		b.WriteString(s.prompt.view(st))
	}
	for _, l := range s.info {
		b.WriteString(st.Muted.Render(l) + "\n")
	}
	b.WriteString(st.Muted.Render("←/→: table • i: import • x: export • R: reset • o: orphans • O: delete orphans • t: check interval • s: schema"))
	return b.String()
}

// layout detail

type layoutScreen struct {
	page   *app.LayoutDetail
	panes  [2]*pane
	active int
	prompt *prompt
}

func newLayout(a *app.App, id int64, st Styles) (*layoutScreen, error) {
	page, err := a.LayoutDetail(id)
	if err != nil {
		return nil, err
	}
	return &layoutScreen{
		page:  page,
		panes: [2]*pane{newPane(page.Districts, st), newPane(page.Dispatchers, st)},
	}, nil
}

func (s *layoutScreen) load(ctx context.Context) tea.Cmd {
	page := s.page
	return func() tea.Msg { return loadedMsg{err: page.Load(ctx)} }
}

func (s *layoutScreen) handle(msg tea.Msg, st Styles) {
	if sm, ok := msg.(submittedMsg); ok {
		for _, p := range s.panes {
			p.submitted(sm)
		}
	}
	for _, p := range s.panes {
		p.refresh(st)
	}
}

func (s *layoutScreen) capturing() bool {
	return s.prompt != nil || s.panes[s.active].capturing()
}

func (s *layoutScreen) close() { s.page.Close() }

func (s *layoutScreen) key(ctx context.Context, msg tea.KeyMsg) tea.Cmd {
	if s.prompt != nil {
		cmd, done := s.prompt.key(msg)
		if done {
			s.prompt = nil
		}
		return cmd
	}
	cur := s.panes[s.active]
	if cur.capturing() || cur.confirm != 0 {
		return cur.key(ctx, msg)
	}
	switch msg.String() {
	case "tab":
		s.active = 1 - s.active
	case "b":
		return failed(s.page.Back())
	case "p":
		page := s.page
		name := fmt.Sprintf("layout-%d-roster.pdf", page.ID())
		s.prompt = newPrompt("Save roster PDF to", name, func(path string) tea.Cmd {
			return func() tea.Msg {
				err := page.SaveRoster(ctx, path)
				return doneMsg{text: "Roster saved to " + path + ".", err: err}
			}
		})
	default:
		return cur.key(ctx, msg)
	}
	return nil
}

func (s *layoutScreen) view(st Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render(s.page.Heading()) + "\n\n")
	titles := [2]string{"Districts", "Dispatchers (Global)"}
	for i, p := range s.panes {
		t := titles[i]
		if i == s.active {
			t = "▶ " + t
		}
		b.WriteString(p.view(st, t) + "\n")
	}
	if s.prompt != nil {
		b.WriteString(s.prompt.view(st))
	}
	b.WriteString(st.Muted.Render("tab: switch table • p: roster PDF • b: back to layouts"))
	return b.String()
}
