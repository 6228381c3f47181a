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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/entity"
)

// LayoutDetail shows one layout with its districts and the global
// dispatchers.
type LayoutDetail struct {
	app         *App
	id          int64
	Districts   *entity.Manager
	Dispatchers *entity.Manager

	mu     sync.Mutex
	layout *domain.Layout
}

// LayoutDetail mounts the detail page of layout id.
func (a *App) LayoutDetail(id int64) (*LayoutDetail, error) {
	if id <= 0 {
		return nil, ErrNoLayout
	}
	return &LayoutDetail{
		app:         a,
		id:          id,
		Districts:   a.Manager(layoutDistrictsScoped(a.client, id)),
		Dispatchers: a.Manager(dispatchersConfig(a.client)),
	}, nil
}

func (p *LayoutDetail) ID() int64 { return p.id }

// Load finds the layout and fetches both tables.
func (p *LayoutDetail) Load(ctx context.Context) error {
	recs, err := p.app.cache.Records(ctx, domain.KindLayouts)
	if err != nil {
		return err
	}
	var found *domain.Layout
	for _, r := range recs {
		if r.ID() != p.id {
			continue
		}
		l, err := entity.FromRecord[domain.Layout](r)
		if err != nil {
			return err
		}
		found = &l
		break
	}
	if found == nil {
		return fmt.Errorf("layout %d: %w", p.id, entity.ErrNoRecord)
	}
	p.mu.Lock()
	p.layout = found
	p.mu.Unlock()

	if err := p.Districts.Load(ctx); err != nil {
		return err
	}
	return p.Dispatchers.Load(ctx)
}

// Layout returns the loaded layout.
func (p *LayoutDetail) Layout() (domain.Layout, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.layout == nil {
		return domain.Layout{}, false
	}
	return *p.layout, true
}

// Heading is the one-line layout summary shown above the tables.
func (p *LayoutDetail) Heading() string {
	l, ok := p.Layout()
	if !ok {
		return fmt.Sprintf("Layout #%d", p.id)
	}
	return fmt.Sprintf("Layout: %s  City: %s  State: %s  Start: %s  End: %s",
		l.Name, l.LocationCity, l.LocationState, l.StartDate, l.EndDate)
}

// SaveRoster writes the layout roster PDF to path.
func (p *LayoutDetail) SaveRoster(ctx context.Context, path string) error {
	pdf, err := p.app.client.Roster(ctx, p.id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, pdf, 0o644)
}

// Back returns to the dashboard.
func (p *LayoutDetail) Back() error { return p.app.router.Navigate(PageDashboard) }

// Close unmounts both managers.
func (p *LayoutDetail) Close() {
	p.Districts.Close()
	p.Dispatchers.Close()
}
