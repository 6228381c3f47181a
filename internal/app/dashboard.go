/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/entity"
	"traindispatcher/internal/version"
)

// Messages shown on the dashboard.
const (
	NoLayoutsMessage   = "No Layout exists."
	HasLayoutsMessage  = "Layout(s) detected."
	NoMatchMessage     = "No layouts found."
	UnknownVersionText = "Unknown"
)

// Dashboard lists the layouts and the client and backend versions.
type Dashboard struct {
	app   *App
	unsub func()

	mu       sync.Mutex
	versions version.Versions
	layouts  []domain.Layout
	err      string
	onChange func()
}

// Dashboard mounts the dashboard. It reloads when layouts change.
func (a *App) Dashboard() *Dashboard {
	d := &Dashboard{app: a}
	d.unsub = a.cache.Subscribe(domain.KindLayouts, func(ctx context.Context, _ domain.Kind) {
		_ = d.loadLayouts(ctx)
	})
	return d
}

// OnChange registers the redraw callback.
func (d *Dashboard) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Dashboard) changed() {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load fetches the versions and the layouts. A versions failure only
// leaves them unknown.
func (d *Dashboard) Load(ctx context.Context) error {
	v, err := d.app.client.Versions(ctx)
	if err != nil {
		d.app.log.Warn("versions unavailable", slog.Any("err", err))
	} else {
		d.mu.Lock()
		d.versions = v
		d.mu.Unlock()
	}
	return d.loadLayouts(ctx)
}

func (d *Dashboard) loadLayouts(ctx context.Context) error {
	recs, err := d.app.cache.Records(ctx, domain.KindLayouts)
	var layouts []domain.Layout
	if err == nil {
		layouts = make([]domain.Layout, 0, len(recs))
		for _, r := range recs {
			l, cerr := entity.FromRecord[domain.Layout](r)
			if cerr != nil {
				err = cerr
				break
			}
			layouts = append(layouts, l)
		}
	}
	d.mu.Lock()
	if err != nil {
		d.err = err.Error()
	} else {
		d.layouts, d.err = layouts, ""
	}
	d.mu.Unlock()
	d.changed()
	return err
}

// Versions returns the frontend and backend versions, "Unknown" when not
// loaded.
func (d *Dashboard) Versions() (frontend, backend string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frontend, backend = d.versions.Frontend, d.versions.Backend
	if frontend == "" {
		frontend = UnknownVersionText
	}
	if backend == "" {
		backend = UnknownVersionText
	}
	return frontend, backend
}

func (d *Dashboard) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Empty reports whether no layout exists, in which case the page offers
// to create one.
func (d *Dashboard) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.layouts) == 0
}

// Layouts returns the layouts matching query. Name, city, state and both
// dates are searched, case-insensitively.
func (d *Dashboard) Layouts(query string) []domain.Layout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return FilterLayouts(d.layouts, query)
}

// FilterLayouts keeps the layouts matching query.
func FilterLayouts(layouts []domain.Layout, query string) []domain.Layout {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Layout, 0, len(layouts))
	for _, l := range layouts {
		if q == "" || matchLayout(l, q) {
			out = append(out, l)
		}
	}
	return out
}

func matchLayout(l domain.Layout, q string) bool {
	for _, s := range []string{l.Name, l.LocationCity, l.LocationState, l.StartDate, l.EndDate} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// CreateLayout goes to the configuration page, where layouts are created.
func (d *Dashboard) CreateLayout() error {
	return d.app.router.Navigate(PageAdminConfig)
}

// Select opens the detail page of layout id.
func (d *Dashboard) Select(id int64) error {
	return d.app.router.OpenLayout(id)
}

// Close unmounts the page.
func (d *Dashboard) Close() {
	if d.unsub != nil {
		d.unsub()
	}
}
