/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traindispatcher/internal/domain"
)

type colType int

const (
	colText colType = iota
	colInt
	colBool
	colRef // nullable integer id of another table
)

type column struct {
	Name string
	Type colType
}

// table describes one entity table; the id column is implicit.
type table struct {
	Kind    domain.Kind
	Columns []column
}

func (t table) hasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (t table) columnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// tables is in domain.Kinds order.
var tables = []table{
	{domain.KindLayouts, []column{
		{"key", colText}, {"name", colText}, {"start_date", colText}, {"end_date", colText},
		{"location_city", colText}, {"location_state", colText},
	}},
	{domain.KindDispatchers, []column{
		{"first_name", colText}, {"last_name", colText}, {"cell_number", colText},
	}},
	{domain.KindDistricts, []column{
		{"name", colText}, {"channel_or_frequency", colText}, {"layout_id", colRef}, {"dispatcher_id", colRef},
	}},
	{domain.KindLayoutDistricts, []column{
		{"layout_id", colRef}, {"district_id", colRef},
	}},
	{domain.KindLayoutDistrictModules, []column{
		{"layout_district_id", colRef}, {"module_key", colText}, {"name", colText}, {"owner_name", colText},
		{"owner_email", colText}, {"category", colText}, {"number_of_endplates", colInt},
	}},
	{domain.KindModules, []column{
		{"name", colText}, {"district_id", colRef}, {"number_of_endplates", colInt},
		{"owner", colText}, {"owner_email", colText}, {"is_yard", colBool},
	}},
	{domain.KindModuleEndplates, []column{
		{"module_id", colRef}, {"endplate_number", colInt}, {"connected_module_id", colRef},
	}},
	{domain.KindTrains, []column{
		{"name", colText}, {"status", colText},
	}},
}

func tableFor(k domain.Kind) (table, bool) {
	for _, t := range tables {
		if t.Kind == k {
			return t, true
		}
	}
	return table{}, false
}

func (s *Store) columnDDL(c column) string {
	pg := s.dialect == dialectPostgres
	switch c.Type {
	case colInt:
		return c.Name + " INTEGER NOT NULL DEFAULT 0"
	case colBool:
		if pg {
			return c.Name + " BOOLEAN NOT NULL DEFAULT FALSE"
		}
		return c.Name + " INTEGER NOT NULL DEFAULT 0"
	case colRef:
		if pg {
			return c.Name + " BIGINT"
		}
		return c.Name + " INTEGER"
	default:
		return c.Name + " TEXT NOT NULL DEFAULT ''"
	}
}

func (s *Store) createTableSQL(t table) string {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == dialectPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	cols := []string{id}
	for _, c := range t.Columns {
		cols = append(cols, s.columnDDL(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Kind, strings.Join(cols, ",\n\t"))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ensureTables creates every entity table and its foreign key indexes.
func (s *Store) ensureTables(ctx context.Context, db execer) error {
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, s.createTableSQL(t)); err != nil {
			return fmt.Errorf("create %s: %w", t.Kind, err)
		}
		for _, c := range t.Columns {
			if c.Type != colRef {
				continue
			}
			q := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)`, t.Kind, c.Name, t.Kind, c.Name)
			if _, err := db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("index %s.%s: %w", t.Kind, c.Name, err)
			}
		}
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

// codec maps a domain record to table columns in declaration order.
type codec[T any] struct {
	table  table
	values func(T) []any
	scan   func(scanner) (T, error)
	setID  func(*T, int64)
}

func ref(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func refZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func fromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func mustTable(k domain.Kind) table {
	t, ok := tableFor(k)
	if !ok {
		panic("store: no table for " + string(k))
	}
	return t
}

var layoutCodec = codec[domain.Layout]{
	table: mustTable(domain.KindLayouts),
	values: func(l domain.Layout) []any {
		return []any{l.Key, l.Name, l.StartDate, l.EndDate, l.LocationCity, strings.ToUpper(l.LocationState)}
	},
	scan: func(sc scanner) (l domain.Layout, err error) {
		err = sc.Scan(&l.ID, &l.Key, &l.Name, &l.StartDate, &l.EndDate, &l.LocationCity, &l.LocationState)
		return l, err
	},
	setID: func(l *domain.Layout, id int64) { l.ID = id },
}

var dispatcherCodec = codec[domain.Dispatcher]{
	table: mustTable(domain.KindDispatchers),
	values: func(d domain.Dispatcher) []any {
		return []any{d.FirstName, d.LastName, d.CellNumber}
	},
	scan: func(sc scanner) (d domain.Dispatcher, err error) {
		err = sc.Scan(&d.ID, &d.FirstName, &d.LastName, &d.CellNumber)
		return d, err
	},
	setID: func(d *domain.Dispatcher, id int64) { d.ID = id },
}

var districtCodec = codec[domain.District]{
	table: mustTable(domain.KindDistricts),
	values: func(d domain.District) []any {
		return []any{d.Name, d.ChannelOrFrequency, ref(d.LayoutID), ref(d.DispatcherID)}
	},
	scan: func(sc scanner) (d domain.District, err error) {
		var layout, dispatcher sql.NullInt64
		err = sc.Scan(&d.ID, &d.Name, &d.ChannelOrFrequency, &layout, &dispatcher)
		d.LayoutID, d.DispatcherID = fromNull(layout), fromNull(dispatcher)
		return d, err
	},
	setID: func(d *domain.District, id int64) { d.ID = id },
}

var layoutDistrictCodec = codec[domain.LayoutDistrict]{
	table: mustTable(domain.KindLayoutDistricts),
	values: func(ld domain.LayoutDistrict) []any {
		return []any{refZero(ld.LayoutID), refZero(ld.DistrictID)}
	},
	scan: func(sc scanner) (ld domain.LayoutDistrict, err error) {
		var layout, district sql.NullInt64
		err = sc.Scan(&ld.ID, &layout, &district)
		ld.LayoutID, ld.DistrictID = layout.Int64, district.Int64
		return ld, err
	},
	setID: func(ld *domain.LayoutDistrict, id int64) { ld.ID = id },
}

var layoutDistrictModuleCodec = codec[domain.LayoutDistrictModule]{
	table: mustTable(domain.KindLayoutDistrictModules),
	values: func(m domain.LayoutDistrictModule) []any {
		return []any{refZero(m.LayoutDistrictID), m.ModuleKey, m.Name, m.OwnerName, m.OwnerEmail, m.Category, m.NumberOfEndplates}
	},
	scan: func(sc scanner) (m domain.LayoutDistrictModule, err error) {
		var ld sql.NullInt64
		err = sc.Scan(&m.ID, &ld, &m.ModuleKey, &m.Name, &m.OwnerName, &m.OwnerEmail, &m.Category, &m.NumberOfEndplates)
		m.LayoutDistrictID = ld.Int64
		return m, err
	},
	setID: func(m *domain.LayoutDistrictModule, id int64) { m.ID = id },
}

var moduleCodec = codec[domain.Module]{
	table: mustTable(domain.KindModules),
	values: func(m domain.Module) []any {
		return []any{m.Name, ref(m.DistrictID), m.NumberOfEndplates, m.Owner, m.OwnerEmail, m.IsYard}
	},
	scan: func(sc scanner) (m domain.Module, err error) {
		var district sql.NullInt64
		err = sc.Scan(&m.ID, &m.Name, &district, &m.NumberOfEndplates, &m.Owner, &m.OwnerEmail, &m.IsYard)
		m.DistrictID = fromNull(district)
		return m, err
	},
	setID: func(m *domain.Module, id int64) { m.ID = id },
}

var moduleEndplateCodec = codec[domain.ModuleEndplate]{
	table: mustTable(domain.KindModuleEndplates),
	values: func(e domain.ModuleEndplate) []any {
		return []any{refZero(e.ModuleID), e.EndplateNumber, ref(e.ConnectedModuleID)}
	},
	scan: func(sc scanner) (e domain.ModuleEndplate, err error) {
		var module, connected sql.NullInt64
		err = sc.Scan(&e.ID, &module, &e.EndplateNumber, &connected)
		e.ModuleID, e.ConnectedModuleID = module.Int64, fromNull(connected)
		return e, err
	},
	setID: func(e *domain.ModuleEndplate, id int64) { e.ID = id },
}

var trainCodec = codec[domain.Train]{
	table: mustTable(domain.KindTrains),
	values: func(t domain.Train) []any {
		return []any{t.Name, t.Status}
	},
	scan: func(sc scanner) (t domain.Train, err error) {
		err = sc.Scan(&t.ID, &t.Name, &t.Status)
		return t, err
	},
	setID: func(t *domain.Train, id int64) { t.ID = id },
}

func (s *Store) Layouts() Repo[domain.Layout]         { return Repo[domain.Layout]{s: s, c: layoutCodec} }
func (s *Store) Dispatchers() Repo[domain.Dispatcher] { return Repo[domain.Dispatcher]{s: s, c: dispatcherCodec} }
func (s *Store) Districts() Repo[domain.District]     { return Repo[domain.District]{s: s, c: districtCodec} }
func (s *Store) LayoutDistricts() Repo[domain.LayoutDistrict] {
	return Repo[domain.LayoutDistrict]{s: s, c: layoutDistrictCodec}
}
func (s *Store) LayoutDistrictModules() Repo[domain.LayoutDistrictModule] {
	return Repo[domain.LayoutDistrictModule]{s: s, c: layoutDistrictModuleCodec}
}
func (s *Store) Modules() Repo[domain.Module] { return Repo[domain.Module]{s: s, c: moduleCodec} }
func (s *Store) ModuleEndplates() Repo[domain.ModuleEndplate] {
	return Repo[domain.ModuleEndplate]{s: s, c: moduleEndplateCodec}
}
func (s *Store) Trains() Repo[domain.Train] { return Repo[domain.Train]{s: s, c: trainCodec} }
