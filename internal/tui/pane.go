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
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"traindispatcher/internal/entity"
)

const (
	maxColWidth = 28
	tableHeight = 10
)

// pane renders one entity manager as a table plus its create/edit form.
type pane struct {
	mgr     *entity.Manager
	table   table.Model
	form    *form
	confirm int64 // id awaiting delete confirmation
}

func newPane(mgr *entity.Manager, st Styles) *pane {
	p := &pane{
		mgr: mgr,
		table: table.New(
			table.WithFocused(true),
			table.WithHeight(tableHeight),
			table.WithStyles(st.Table),
		),
	}
	p.refresh(st)
	return p
}

func newInput(value string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.SetValue(value)
	return ti
}

// refresh copies the manager rows into the table.
func (p *pane) refresh(st Styles) {
	labels := append([]string{"ID"}, p.mgr.Columns()...)
	rows := p.mgr.Rows()
	widths := make([]int, len(labels))
	for i, l := range labels {
		widths[i] = lipgloss.Width(l)
	}
	trows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		cells := append([]string{strconv.FormatInt(r.ID, 10)}, r.Cells...)
		for i, c := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], min(lipgloss.Width(c), maxColWidth))
			}
		}
		trows = append(trows, table.Row(cells))
	}
	cols := make([]table.Column, len(labels))
	for i, l := range labels {
		cols[i] = table.Column{Title: l, Width: widths[i]}
	}
	p.table.SetRows(nil)
	p.table.SetColumns(cols)
	p.table.SetRows(trows)
	p.table.SetStyles(st.Table)
	if c := p.table.Cursor(); c >= len(trows) && len(trows) > 0 {
		p.table.SetCursor(len(trows) - 1)
	}
}

func (p *pane) selectedID() (int64, bool) {
	row := p.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(row[0], 10, 64)
	return id, err == nil
}

// capturing reports whether keys go to a text input.
func (p *pane) capturing() bool { return p.form != nil }

func (p *pane) key(ctx context.Context, msg tea.KeyMsg) tea.Cmd {
	if p.form != nil {
		return p.formKey(ctx, msg)
	}
	if p.confirm != 0 {
		id := p.confirm
		p.confirm = 0
		if msg.String() != "y" {
			return nil
		}
		mgr := p.mgr
		return func() tea.Msg {
			err := mgr.Delete(ctx, id, nil)
			return doneMsg{text: fmt.Sprintf("Deleted %s #%d.", mgr.Config().Name, id), err: err}
		}
	}
	switch msg.String() {
	case "n":
		if err := p.mgr.OpenCreate(); err != nil {
			return failed(err)
		}
		p.openForm()
	case "e", "enter":
		id, ok := p.selectedID()
		if !ok {
			return nil
		}
		if err := p.mgr.OpenEdit(id); err != nil {
			return failed(err)
		}
		p.openForm()
	case "d", "delete":
		if id, ok := p.selectedID(); ok {
			p.confirm = id
		}
	case "r":
		mgr := p.mgr
		return func() tea.Msg { return doneMsg{err: mgr.Load(ctx)} }
	default:
		var cmd tea.Cmd
		p.table, cmd = p.table.Update(msg)
		return cmd
	}
	return nil
}

func (p *pane) view(st Styles, title string) string {
	var b strings.Builder
	b.WriteString(st.Header.Render(title))
	if s := p.mgr.State(); s == entity.Fetching {
		b.WriteString(st.Muted.Render("  loading..."))
	}
	b.WriteString("\n")
	b.WriteString(p.table.View())
	b.WriteString("\n")
	if e := p.mgr.Err(); e != "" && p.form == nil {
		b.WriteString(st.Error.Render(e) + "\n")
	}
	switch {
	case p.form != nil:
		b.WriteString(p.form.view(st, p.mgr))
	case p.confirm != 0:
		b.WriteString(st.Error.Render(entity.DeletePrompt+" (y/n)") + "\n")
	default:
		b.WriteString(st.Muted.Render("n: new • e: edit • d: delete • r: reload") + "\n")
	}
	return b.String()
}

// form edits the manager draft. Values are pushed into the draft on
// submit and whenever focus moves, so dependent choices follow.
type form struct {
	fields []entity.Field
	inputs []textinput.Model
	focus  int
	err    string
}

func (p *pane) openForm() {
	draft := p.mgr.Draft()
	f := &form{}
	for _, fd := range p.mgr.Config().Fields {
		if fd.Hidden() {
			continue
		}
		f.fields = append(f.fields, fd)
		f.inputs = append(f.inputs, newInput(inputValue(fd, draft[fd.Name()])))
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	p.form = f
}

// inputValue is the editable text of v; selects edit the raw value.
func inputValue(f entity.Field, v any) string {
	if v == nil {
		return ""
	}
	switch f.(type) {
	case entity.Select:
		if n, ok := entity.AsInt64(v); ok {
			if n == 0 {
				return ""
			}
			return strconv.FormatInt(n, 10)
		}
		return fmt.Sprint(v)
	case entity.Checkbox:
		if b, _ := v.(bool); b {
			return "yes"
		}
		return "no"
	}
	return f.Format(v, nil)
}

func (p *pane) push(i int) error {
	f := p.form
	return p.mgr.Set(f.fields[i].Name(), f.inputs[i].Value())
}

func (p *pane) formKey(ctx context.Context, msg tea.KeyMsg) tea.Cmd {
	f := p.form
	switch msg.String() {
	case "esc":
		_ = p.mgr.Cancel()
		p.form = nil
		return nil
	case "tab", "down", "shift+tab", "up":
		if err := p.push(f.focus); err != nil {
			f.err = err.Error()
		} else {
			f.err = ""
		}
		// dependent selects may have been cleared
		draft := p.mgr.Draft()
		for i, fd := range f.fields {
			if i != f.focus {
				f.inputs[i].SetValue(inputValue(fd, draft[fd.Name()]))
			}
		}
		f.inputs[f.focus].Blur()
		if s := msg.String(); s == "shift+tab" || s == "up" {
			f.focus = (f.focus - 1 + len(f.inputs)) % len(f.inputs)
		} else {
			f.focus = (f.focus + 1) % len(f.inputs)
		}
		f.inputs[f.focus].Focus()
		return nil
	case "enter":
		for i := range f.inputs {
			if err := p.push(i); err != nil {
				f.err = err.Error()
				return nil
			}
		}
		if err := p.mgr.Validate(); err != nil {
			f.err = err.Error()
			return nil
		}
		f.err = ""
		mgr := p.mgr
		return func() tea.Msg {
			err := mgr.Submit(ctx)
			return submittedMsg{mgr: mgr, err: err}
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

// submitted closes the form after a successful save; on failure it stays
// open with the error shown.
func (p *pane) submitted(msg submittedMsg) {
	if msg.mgr != p.mgr || p.form == nil {
		return
	}
	if msg.err != nil {
		p.form.err = msg.err.Error()
		return
	}
	p.form = nil
}

func (f *form) view(st Styles, mgr *entity.Manager) string {
	var b strings.Builder
	title := "New " + mgr.Config().Name
	if id := mgr.EditingID(); id != 0 {
		title = fmt.Sprintf("Edit %s #%d", mgr.Config().Name, id)
	}
	b.WriteString(st.Title.Render(title) + "\n")
	for i, fd := range f.fields {
		label := st.Muted.Render(fd.Label() + ":")
		if i == f.focus {
			label = st.Focused.Render(fd.Label() + ":")
		}
		fmt.Fprintf(&b, " %s %s\n", label, f.inputs[i].View())
		if sel, ok := fd.(entity.Select); ok && i == f.focus {
			if hint := choicesHint(mgr.Choices(sel.Key)); hint != "" {
				b.WriteString("   " + st.Muted.Render(hint) + "\n")
			}
		}
	}
	if f.err != "" {
		b.WriteString(st.Error.Render(f.err) + "\n")
	}
	b.WriteString(st.Muted.Render("tab: next field • enter: save • esc: cancel"))
	return st.Box.Render(b.String()) + "\n"
}

const maxHintChoices = 12

func choicesHint(opts []entity.Option) string {
	if len(opts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(opts))
	for i, o := range opts {
		if i == maxHintChoices {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(opts)-i))
			break
		}
		parts = append(parts, fmt.Sprintf("%v=%s", o.Value, o.Label))
	}
	return strings.Join(parts, ", ")
}
