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
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"traindispatcher/internal/app"
	"traindispatcher/internal/config"
	"traindispatcher/internal/domain"
	applog "traindispatcher/internal/log"
	"traindispatcher/internal/version"
)

// Run opens the desktop window. build receives the Fyne theme applier and
// returns the app to render. Run returns when the window closes or ctx is
// cancelled.
func Run(ctx context.Context, build func(app.ThemeApplier) (*app.App, error)) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	fa := fyneapp.NewWithID("traindispatcher")
	a, err := build(themeApplier{app: fa})
	if err != nil {
		return err
	}

	w := fa.NewWindow("Train Dispatcher Admin")
	prefs := fa.Preferences()
	winW, winH := windowSize(prefs.IntWithFallback("window.width", 1200), prefs.IntWithFallback("window.height", 800))
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	sh := &shell{ctx: ctx, app: a, win: w, log: l, root: container.NewStack()}
	w.SetMainMenu(sh.mainMenu())
	w.SetContent(sh.root)

	a.Router().OnNavigate(func(p app.Page, id int64) {
		fyne.Do(func() { sh.show(p, id) })
	})
	sh.show(a.Router().Current())

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		sh.unmount()
		w.Close()
	})

	go func() {
		<-ctx.Done()
		fyne.Do(fa.Quit)
	}()

	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

// shell owns the window and swaps the mounted page on navigation.
type shell struct {
	ctx  context.Context
	app  *app.App
	win  fyne.Window
	log  *slog.Logger
	root *fyne.Container

	closer func()
}

func (s *shell) mainMenu() *fyne.MainMenu {
	var goItems []*fyne.MenuItem
	for _, e := range app.Menu() {
		target := e.Target
		goItems = append(goItems, fyne.NewMenuItem(e.Label, func() {
			s.log.Info("menu: navigate", slog.String("page", string(target)))
			if err := s.app.Router().Navigate(target); err != nil {
				dialog.ShowError(err, s.win)
			}
		}))
	}
	var themeItems []*fyne.MenuItem
	for _, t := range config.Themes {
		name := t
		themeItems = append(themeItems, fyne.NewMenuItem(name, func() {
			if err := s.app.SetTheme(name); err != nil {
				dialog.ShowError(err, s.win)
			}
		}))
	}
	about := fyne.NewMenuItem("About", func() {
		dialog.ShowInformation("About", fmt.Sprintf("Train Dispatcher Admin %s", version.String()), s.win)
	})
	return fyne.NewMainMenu(
		fyne.NewMenu("Go", goItems...),
		fyne.NewMenu("Theme", themeItems...),
		fyne.NewMenu("Help", about),
	)
}

func (s *shell) unmount() {
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
}

func (s *shell) show(p app.Page, id int64) {
	s.unmount()
	var content fyne.CanvasObject
	switch p {
	case app.PageAdmin:
		content = s.adminPage()
	case app.PageAdminConfig:
		content = s.configPage()
	case app.PageLayout:
		c, err := s.layoutPage(id)
		if err != nil {
			dialog.ShowError(err, s.win)
			_ = s.app.Router().Navigate(app.PageDashboard)
			return
		}
		content = c
	default:
		content = s.dashboardPage()
	}
	s.root.Objects = []fyne.CanvasObject{content}
	s.root.Refresh()
}

func (s *shell) dashboardPage() fyne.CanvasObject {
	d := s.app.Dashboard()
	s.closer = d.Close

	var shown []domain.Layout
	query := ""
	message := widget.NewLabel("")
	versions := widget.NewLabel("")
	list := widget.NewList(
		func() int { return len(shown) },
		func() fyne.CanvasObject { return widget.NewLabel("layout") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			l := shown[i]
			o.(*widget.Label).SetText(fmt.Sprintf("%s  (%s, %s)  %s - %s", l.Name, l.LocationCity, l.LocationState, l.StartDate, l.EndDate))
		},
	)
	list.OnSelected = func(i widget.ListItemID) {
		if i < len(shown) {
			if err := d.Select(shown[i].ID); err != nil {
				dialog.ShowError(err, s.win)
			}
		}
	}
	redraw := func() {
		shown = d.Layouts(query)
		fe, be := d.Versions()
		versions.SetText(fmt.Sprintf("Frontend %s • Backend %s", fe, be))
		switch {
		case d.Err() != "":
			message.SetText(d.Err())
		case d.Empty():
			message.SetText(app.NoLayoutsMessage)
		case len(shown) == 0:
			message.SetText(app.NoMatchMessage)
		default:
			message.SetText(app.HasLayoutsMessage)
		}
		list.UnselectAll()
		list.Refresh()
	}
	d.OnChange(func() { fyne.Do(redraw) })

	search := widget.NewEntry()
	search.SetPlaceHolder("Search layouts...")
	search.OnChanged = func(q string) {
		query = q
		redraw()
	}
	create := widget.NewButton("Create Layout", func() {
		if err := d.CreateLayout(); err != nil {
			dialog.ShowError(err, s.win)
		}
	})
	go func() {
		_ = d.Load(s.ctx)
		fyne.Do(redraw)
	}()
	top := container.NewVBox(
		widget.NewLabelWithStyle("App Dashboard", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		versions, search, message,
	)
	return container.NewBorder(top, container.NewHBox(create), nil, nil, list)
}

func (s *shell) adminPage() fyne.CanvasObject {
	p := s.app.Admin()
	body := widget.NewLabel("Loading...")
	body.Wrapping = fyne.TextWrapWord
	go func() {
		_ = p.Load(s.ctx)
		fyne.Do(func() {
			st, ok := p.Status()
			if !ok {
				body.SetText(p.ErrText())
				return
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%s\n\nFrontend: %s\nBackend: %s\nUptime: %ds\nBackend IP Addresses: %s\n\n",
				st.Message, st.FrontendVersion, st.BackendVersion, st.UptimeSeconds, p.IPs())
			kinds := make([]string, 0, len(st.ServiceCounts))
			for k := range st.ServiceCounts {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(&b, "%s: %d\n", k, st.ServiceCounts[domain.Kind(k)])
			}
			if len(st.Logs) > 0 {
				b.WriteString("\nRecent log:\n" + strings.Join(st.Logs, "\n"))
			}
			body.SetText(b.String())
		})
	}()
	open := widget.NewButton("Database/Config", func() {
		if err := p.OpenConfig(); err != nil {
			dialog.ShowError(err, s.win)
		}
	})
	title := widget.NewLabelWithStyle("System Admin", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewBorder(title, container.NewHBox(open), nil, nil, container.NewVScroll(body))
}

func (s *shell) configPage() fyne.CanvasObject {
	p := s.app.ConfigPage()
	s.closer = p.Close

	tabs := container.NewAppTabs()
	for _, m := range p.Managers() {
		v := newManagerView(s.ctx, m, s.win)
		tabs.Append(container.NewTabItem(m.Config().Name, v.object(m.Config().Name)))
	}
	tabs.Append(container.NewTabItem("Database", s.databaseTab(p)))
	tabs.SetTabLocation(container.TabLocationLeading)
	go func() {
		if err := p.Load(s.ctx); err != nil {
			s.log.Warn("config load failed", slog.Any("err", err))
		}
	}()
	title := widget.NewLabelWithStyle("Database Tables (CRUD)", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewBorder(title, nil, nil, nil, tabs)
}

func (s *shell) databaseTab(p *app.ConfigPage) fyne.CanvasObject {
	status := widget.NewLabel("")
	status.Wrapping = fyne.TextWrapWord
	lastCheck := widget.NewLabel("")
	interval := widget.NewEntry()
	interval.SetPlaceHolder("minutes")

	// background runs fn and reports its text or error on the UI thread.
	background := func(fn func() (string, error)) {
		go func() {
			text, err := fn()
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, s.win)
					return
				}
				if text != "" {
					status.SetText(text)
				}
			})
		}()
	}
	refreshCheck := func() {
		background(func() (string, error) {
			last, err := p.LastOrphanCheck(s.ctx)
			if err != nil {
				return "", err
			}
			minutes, err := p.OrphanInterval(s.ctx)
			if err != nil {
				return "", err
			}
			fyne.Do(func() {
				lastCheck.SetText("Last orphan check: " + last)
				interval.SetText(strconv.Itoa(minutes))
			})
			return "", nil
		})
	}

	importBtn := widget.NewButton("Import DB...", func() {
		fd := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
			if err != nil || r == nil {
				return
			}
			path := r.URI().Path()
			_ = r.Close()
			dialog.ShowConfirm("Import", "Replace the database with "+path+"?", func(ok bool) {
				if ok {
					background(func() (string, error) { return p.ImportDB(s.ctx, path) })
				}
			}, s.win)
		}, s.win)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".db", ".sqlite", ".sqlite3"}))
		fd.Show()
	})
	exportBtn := widget.NewButton("Export DB...", func() {
		fd := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			path := wc.URI().Path()
			_ = wc.Close()
			background(func() (string, error) {
				n, err := p.ExportDB(s.ctx, path)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Exported %d bytes to %s.", n, path), nil
			})
		}, s.win)
		fd.SetFileName("dispatcher_db_export.db")
		fd.Show()
	})
	resetBtn := widget.NewButton("Reset DB", func() {
		dialog.ShowConfirm("Reset", "Delete all data and recreate the schema?", func(ok bool) {
			if ok {
				background(func() (string, error) { return p.ResetDB(s.ctx) })
			}
		}, s.win)
	})
	orphansBtn := widget.NewButton("Find Orphans", func() {
		background(func() (string, error) {
			lines, err := p.Orphans(s.ctx)
			if err != nil {
				return "", err
			}
			fyne.Do(func() { dialog.ShowInformation("Orphans", orphanText(lines), s.win) })
			return "", nil
		})
	})
	deleteOrphansBtn := widget.NewButton("Delete Orphans", func() {
		dialog.ShowConfirm("Delete Orphans", "Delete every orphaned record?", func(ok bool) {
			if !ok {
				return
			}
			background(func() (string, error) {
				n, err := p.DeleteOrphans(s.ctx)
				if err != nil {
					return "", err
				}
				refreshCheck()
				return fmt.Sprintf("Deleted %d orphan(s).", n), nil
			})
		}, s.win)
	})
	setInterval := widget.NewButton("Set Interval", func() {
		n, err := strconv.Atoi(strings.TrimSpace(interval.Text))
		if err != nil {
			dialog.ShowError(fmt.Errorf("interval must be a whole number of minutes"), s.win)
			return
		}
		background(func() (string, error) {
			if err := p.SetOrphanInterval(s.ctx, n); err != nil {
				return "", err
			}
			return fmt.Sprintf("Orphan check every %d minute(s).", n), nil
		})
	})
	schemaBtn := widget.NewButton("Schema", func() {
		background(func() (string, error) {
			lines, err := p.SchemaSummary(s.ctx)
			if err != nil {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		})
	})
	dbStatusBtn := widget.NewButton("Status", func() {
		background(func() (string, error) {
			st, err := p.DatabaseStatus(s.ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Driver: %s\nLocation: %s\nSchema version: %d", st.Driver, st.Location, st.SchemaVersion), nil
		})
	})
	refreshCheck()

	actions := container.NewVBox(
		container.NewHBox(importBtn, exportBtn, resetBtn, dbStatusBtn, schemaBtn),
		container.NewHBox(orphansBtn, deleteOrphansBtn),
		container.NewBorder(nil, nil, widget.NewLabel("Orphan check interval"), setInterval, interval),
		lastCheck,
	)
	return container.NewBorder(actions, nil, nil, nil, container.NewVScroll(status))
}

func (s *shell) layoutPage(id int64) (fyne.CanvasObject, error) {
	p, err := s.app.LayoutDetail(id)
	if err != nil {
		return nil, err
	}
	s.closer = p.Close

	heading := widget.NewLabelWithStyle(p.Heading(), fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	districts := newManagerView(s.ctx, p.Districts, s.win)
	dispatchers := newManagerView(s.ctx, p.Dispatchers, s.win)
	go func() {
		err := p.Load(s.ctx)
		fyne.Do(func() {
			if err != nil {
				dialog.ShowError(err, s.win)
			}
			heading.SetText(p.Heading())
		})
	}()

	back := widget.NewButton("Back", func() {
		if err := p.Back(); err != nil {
			dialog.ShowError(err, s.win)
		}
	})
	roster := widget.NewButton("Save Roster PDF...", func() {
		fd := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			path := wc.URI().Path()
			_ = wc.Close()
			go func() {
				err := p.SaveRoster(s.ctx, path)
				fyne.Do(func() {
					if err != nil {
						dialog.ShowError(err, s.win)
						return
					}
					dialog.ShowInformation("Roster", "Saved "+path, s.win)
				})
			}()
		}, s.win)
		fd.SetFileName(fmt.Sprintf("layout-%d-roster.pdf", id))
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".pdf"}))
		fd.Show()
	})

	split := container.NewHSplit(districts.object("Districts"), dispatchers.object("Dispatchers (Global)"))
	top := container.NewVBox(container.NewHBox(back, roster), heading)
	return container.NewBorder(top, nil, nil, nil, split), nil
}
