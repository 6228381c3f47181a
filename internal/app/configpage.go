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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"traindispatcher/internal/api"
	"traindispatcher/internal/domain"
	"traindispatcher/internal/entity"
	applog "traindispatcher/internal/log"
)

// ConfigPage holds a manager per table plus the database actions.
type ConfigPage struct {
	app      *App
	managers []*entity.Manager
	log      *slog.Logger
}

// ConfigPage mounts the configuration page with one manager per kind, in
// domain.Kinds order.
func (a *App) ConfigPage() *ConfigPage {
	p := &ConfigPage{app: a, log: applog.WithComponent("app.config")}
	for _, k := range domain.Kinds {
		cfg, err := EntityConfig(a.client, k)
		if err != nil {
			// domain.Kinds and EntityConfig cover the same kinds
			panic(err)
		}
		p.managers = append(p.managers, a.Manager(cfg))
	}
	return p
}

// Managers returns the table managers.
func (p *ConfigPage) Managers() []*entity.Manager { return p.managers }

// Manager returns the manager of kind.
func (p *ConfigPage) Manager(kind domain.Kind) (*entity.Manager, bool) {
	for _, m := range p.managers {
		if m.Config().Kind == kind {
			return m, true
		}
	}
	return nil, false
}

// Load fetches every table. All tables are tried; the first error is
// returned.
func (p *ConfigPage) Load(ctx context.Context) error {
	var first error
	for _, m := range p.managers {
		if err := m.Load(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close unmounts every manager.
func (p *ConfigPage) Close() {
	for _, m := range p.managers {
		m.Close()
	}
}

// ImportDB uploads the SQLite file at path and replaces the database.
func (p *ConfigPage) ImportDB(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	msg, err := p.app.client.ImportDB(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	p.log.Info("database imported", slog.String("file", path))
	p.app.cache.Reset(ctx)
	return msg, nil
}

// ExportDB downloads the database into path. A partial file is removed.
func (p *ConfigPage) ExportDB(ctx context.Context, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := p.app.client.ExportDB(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	p.log.Info("database exported", slog.String("file", path), slog.Int64("bytes", n))
	return n, nil
}

// ResetDB drops and recreates every table.
func (p *ConfigPage) ResetDB(ctx context.Context) (string, error) {
	msg, err := p.app.client.CreateDB(ctx)
	if err != nil {
		return "", err
	}
	p.log.Warn("database reset")
	p.app.cache.Reset(ctx)
	return msg, nil
}

// OrphanLine is one orphan in display order.
type OrphanLine struct {
	Kind domain.Kind
	api.Orphan
}

// Orphans lists rows with dangling references, grouped by kind in
// domain.Kinds order and by id within a kind.
func (p *ConfigPage) Orphans(ctx context.Context) ([]OrphanLine, error) {
	m, err := p.app.client.OrphanRecords(ctx)
	if err != nil {
		return nil, err
	}
	return flattenOrphans(m), nil
}

func flattenOrphans(m map[domain.Kind][]api.Orphan) []OrphanLine {
	var out []OrphanLine
	for _, k := range domain.Kinds {
		list := append([]api.Orphan(nil), m[k]...)
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		for _, o := range list {
			out = append(out, OrphanLine{Kind: k, Orphan: o})
		}
	}
	return out
}

// DeleteOrphans cleans up orphans and reloads every table.
func (p *ConfigPage) DeleteOrphans(ctx context.Context) (int64, error) {
	deleted, err := p.app.client.DeleteOrphans(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range deleted {
		total += n
	}
	p.log.Info("orphans deleted", slog.Int64("rows", total))
	p.app.cache.Reset(ctx)
	return total, nil
}

// OrphanInterval returns the background check interval in minutes; 0 means
// disabled.
func (p *ConfigPage) OrphanInterval(ctx context.Context) (int, error) {
	return p.app.client.OrphanCheckInterval(ctx)
}

func (p *ConfigPage) SetOrphanInterval(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return errors.New("interval must not be negative")
	}
	return p.app.client.SetOrphanCheckInterval(ctx, minutes)
}

// LastOrphanCheck renders the last background scan, e.g.
// "2025-06-01 10:00: 3 orphan(s)".
func (p *ConfigPage) LastOrphanCheck(ctx context.Context) (string, error) {
	c, err := p.app.client.LastOrphanCheck(ctx)
	if err != nil {
		return "", err
	}
	return describeCheck(c), nil
}

func describeCheck(c api.OrphanCheck) string {
	if c.CheckedAt == nil || c.CheckedAt.IsZero() {
		return "Never checked."
	}
	at := c.CheckedAt.Local().Format("2006-01-02 15:04")
	if c.Error != "" {
		return fmt.Sprintf("%s: failed: %s", at, c.Error)
	}
	return fmt.Sprintf("%s: %d orphan(s)", at, c.Total)
}

// SchemaSummary returns one line per table, "name: field, field", followed
// by one line per relationship.
func (p *ConfigPage) SchemaSummary(ctx context.Context) ([]string, error) {
	s, err := p.app.client.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return summarizeSchema(s), nil
}

func summarizeSchema(s api.Schema) []string {
	out := make([]string, 0, len(s.Tables)+len(s.Relationships))
	for _, t := range s.Tables {
		line := t.Name + ":"
		for i, f := range t.Fields {
			if i > 0 {
				line += ","
			}
			line += " " + f
		}
		out = append(out, line)
	}
	for _, r := range s.Relationships {
		out = append(out, fmt.Sprintf("%s.%s -> %s.id", r.From, r.Field, r.To))
	}
	return out
}

// DatabaseStatus reports the driver and row counts.
func (p *ConfigPage) DatabaseStatus(ctx context.Context) (api.DatabaseStatus, error) {
	return p.app.client.DatabaseStatus(ctx)
}
