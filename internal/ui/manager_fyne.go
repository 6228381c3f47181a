//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"traindispatcher/internal/entity"
)

// managerView shows one entity manager as a table with New/Edit/Delete.
type managerView struct {
	ctx context.Context
	mgr *entity.Manager
	win fyne.Window

	table    *widget.Table
	errLabel *widget.Label
	state    *widget.Label
	cols     []string
	rows     []entity.Row
	selected int64
}

func newManagerView(ctx context.Context, mgr *entity.Manager, win fyne.Window) *managerView {
	v := &managerView{ctx: ctx, mgr: mgr, win: win}
	v.errLabel = widget.NewLabel("")
	v.errLabel.Importance = widget.DangerImportance
	v.state = widget.NewLabel("")
	v.table = widget.NewTable(
		func() (int, int) { return len(v.rows), len(v.cols) },
		func() fyne.CanvasObject { return widget.NewLabel("template cell") },
		func(id widget.TableCellID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(v.cell(id))
		},
	)
	v.table.ShowHeaderRow = true
	v.table.CreateHeader = func() fyne.CanvasObject { return widget.NewLabel("header") }
	v.table.UpdateHeader = func(id widget.TableCellID, o fyne.CanvasObject) {
		if id.Col >= 0 && id.Col < len(v.cols) {
			o.(*widget.Label).SetText(v.cols[id.Col])
		}
	}
	v.table.OnSelected = func(id widget.TableCellID) {
		if id.Row >= 0 && id.Row < len(v.rows) {
			v.selected = v.rows[id.Row].ID
		}
	}
	mgr.OnChange(func() { fyne.Do(v.refresh) })
	v.refresh()
	return v
}

func (v *managerView) cell(id widget.TableCellID) string {
	if id.Row < 0 || id.Row >= len(v.rows) {
		return ""
	}
	r := v.rows[id.Row]
	if id.Col == 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	if id.Col-1 < len(r.Cells) {
		return r.Cells[id.Col-1]
	}
	return ""
}

func (v *managerView) refresh() {
	v.cols = append([]string{"ID"}, v.mgr.Columns()...)
	v.rows = v.mgr.Rows()
	for i := range v.cols {
		w := float32(60)
		if i > 0 {
			w = 160
		}
		v.table.SetColumnWidth(i, w)
	}
	v.table.Refresh()
	v.errLabel.SetText(v.mgr.Err())
	if v.mgr.State() == entity.Fetching {
		v.state.SetText("loading...")
	} else {
		v.state.SetText("")
	}
}

// load fetches in the background; OnChange redraws.
func (v *managerView) load() {
	go func() { _ = v.mgr.Load(v.ctx) }()
}

func (v *managerView) object(title string) fyne.CanvasObject {
	buttons := container.NewHBox(
		widget.NewButton("New", func() {
			if err := v.mgr.OpenCreate(); err != nil {
				dialog.ShowError(err, v.win)
				return
			}
			v.showForm()
		}),
		widget.NewButton("Edit", func() {
			if v.selected == 0 {
				return
			}
			if err := v.mgr.OpenEdit(v.selected); err != nil {
				dialog.ShowError(err, v.win)
				return
			}
			v.showForm()
		}),
		widget.NewButton("Delete", v.confirmDelete),
		widget.NewButton("Reload", v.load),
		v.state,
	)
	top := container.NewVBox(widget.NewLabelWithStyle(title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), buttons)
	return container.NewBorder(top, v.errLabel, nil, nil, v.table)
}

func (v *managerView) confirmDelete() {
	id := v.selected
	if id == 0 {
		return
	}
	dialog.ShowConfirm("Delete", entity.DeletePrompt, func(ok bool) {
		if !ok {
			return
		}
		v.selected = 0
		go func() {
			if err := v.mgr.Delete(v.ctx, id, nil); err != nil {
				fyne.Do(func() { dialog.ShowError(err, v.win) })
			}
		}()
	}, v.win)
}

// formField binds one visible field to its widget.
type formField struct {
	field   entity.Field
	entry   *widget.Entry
	check   *widget.Check
	sel     *widget.Select
	syncing bool
}

// showForm opens the draft in a dialog that stays open until the submit
// succeeds or the user cancels.
func (v *managerView) showForm() {
	mgr := v.mgr
	draft := mgr.Draft()
	title := "New " + mgr.Config().Name
	if id := mgr.EditingID(); id != 0 {
		title = fmt.Sprintf("Edit %s #%d", mgr.Config().Name, id)
	}

	var fields []*formField
	syncSelects := func() {
		d := mgr.Draft()
		for _, ff := range fields {
			if ff.sel == nil {
				continue
			}
			s := ff.field.(entity.Select)
			opts := mgr.Choices(s.Key)
			ff.syncing = true
			ff.sel.Options = optionLabels(opts, s.Required)
			if d[s.Key] == nil {
				ff.sel.ClearSelected()
			} else {
				ff.sel.SetSelected(s.Format(d[s.Key], opts))
			}
			ff.syncing = false
			ff.sel.Refresh()
		}
	}

	form := widget.NewForm()
	for _, f := range mgr.Config().Fields {
		if f.Hidden() {
			continue
		}
		ff := &formField{field: f}
		name := f.Name()
		switch fd := f.(type) {
		case entity.Checkbox:
			ff.check = widget.NewCheck("", func(b bool) { _ = mgr.SetValue(name, b) })
			b, _ := draft[name].(bool)
			ff.check.SetChecked(b)
			form.Append(fd.Label(), ff.check)
		case entity.Select:
			ff.sel = widget.NewSelect(nil, func(label string) {
				if ff.syncing {
					return
				}
				if val, ok := optionValue(mgr.Choices(name), label); ok {
					_ = mgr.SetValue(name, val)
					syncSelects()
				}
			})
			form.Append(fd.Label(), ff.sel)
		default:
			ff.entry = widget.NewEntry()
			if draft[name] != nil {
				ff.entry.SetText(f.Format(draft[name], nil))
			}
			form.Append(f.Label(), ff.entry)
		}
		fields = append(fields, ff)
	}
	syncSelects()

	errLabel := widget.NewLabel("")
	errLabel.Importance = widget.DangerImportance
	errLabel.Wrapping = fyne.TextWrapWord

	var d dialog.Dialog
	save := widget.NewButton("Save", nil)
	save.Importance = widget.HighImportance
	save.OnTapped = func() {
		for _, ff := range fields {
			if ff.entry == nil {
				continue
			}
			if err := mgr.Set(ff.field.Name(), ff.entry.Text); err != nil {
				errLabel.SetText(err.Error())
				return
			}
		}
		if err := mgr.Validate(); err != nil {
			errLabel.SetText(err.Error())
			return
		}
		save.Disable()
		go func() {
			err := mgr.Submit(v.ctx)
			fyne.Do(func() {
				save.Enable()
				if err != nil {
					errLabel.SetText(err.Error())
					return
				}
				d.Hide()
			})
		}()
	}
	cancel := widget.NewButton("Cancel", func() {
		_ = mgr.Cancel()
		d.Hide()
	})
	content := container.NewVBox(form, errLabel, container.NewHBox(cancel, save))
	d = dialog.NewCustomWithoutButtons(title, content, v.win)
	d.Resize(fyne.NewSize(480, 0))
	d.Show()
}
