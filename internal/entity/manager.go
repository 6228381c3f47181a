/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package entity is the generic list-and-form controller used for every
// record type. A Manager owns the table rows, the open create or edit
// popup and its draft, and the select options; renderers only draw what it
// exposes and forward user input.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"traindispatcher/internal/domain"
	applog "traindispatcher/internal/log"
)

// State is the manager's lifecycle position.
type State int

const (
	Idle State = iota
	Fetching
	Error
	CreateOpen
	EditOpen
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Error:
		return "error"
	case CreateOpen:
		return "create"
	case EditOpen:
		return "edit"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DeletePrompt is the confirmation text shown before a delete.
const DeletePrompt = "Delete this record?"

var (
	ErrPopupOpen = errors.New("a form is already open")
	ErrNoPopup   = errors.New("no form is open")
	ErrBusy      = errors.New("still loading")
	ErrNoRecord  = errors.New("record not found")
)

// ValidationError is a pre-submit check failure. It never reaches the
// network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Config describes one managed entity type.
type Config struct {
	// Name is the table title.
	Name   string
	Kind   domain.Kind
	Fields []Field
	CRUD   CRUD
	// Preset values are forced into every draft, e.g. a parent layout id.
	Preset Record
	// Validate runs after the field checks.
	Validate func(Record) error
}

// Row is one formatted table line.
type Row struct {
	ID    int64
	Cells []string
}

// Manager drives one entity table and its form. It is safe for concurrent
// use; network calls run without holding the lock.
type Manager struct {
	cfg   Config
	cache *Cache
	log   *slog.Logger

	mu       sync.Mutex
	state    State
	records  []Record
	errMsg   string
	draft    Record
	editID   int64
	options  map[string][]Option
	gen      uint64
	mounted  bool
	onChange []func()
	unsub    []func()
}

// NewManager mounts a manager. It subscribes to invalidations of its own
// kind and of every kind its selects read from.
func NewManager(cfg Config, cache *Cache) *Manager {
	if cache == nil {
		cache = NewCache()
	}
	m := &Manager{
		cfg:     cfg,
		cache:   cache,
		log:     applog.WithComponent("entity").With(slog.String("kind", string(cfg.Kind))),
		options: map[string][]Option{},
		mounted: true,
	}
	kinds := map[domain.Kind]bool{cfg.Kind: true}
	for _, f := range cfg.Fields {
		if sel, ok := f.(Select); ok {
			switch src := sel.Source.(type) {
			case RemoteSource:
				kinds[src.Kind] = true
			case RangeSource:
				kinds[src.Kind] = true
			}
		}
	}
	for k := range kinds {
		m.unsub = append(m.unsub, cache.Subscribe(k, func(ctx context.Context, _ domain.Kind) {
			_ = m.Load(ctx)
		}))
	}
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// OnChange registers fn to run after any state change. fn runs in the
// goroutine that made the change, without the lock held.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) notify() {
	m.mu.Lock()
	fns := append([]func(){}, m.onChange...)
	mounted := m.mounted
	m.mu.Unlock()
	if !mounted {
		return
	}
	for _, fn := range fns {
		fn()
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the inline error text of the last failed call, or "".
func (m *Manager) Err() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// Close unmounts the manager. Results that arrive later are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	m.mounted = false
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()
	for _, u := range unsub {
		u()
	}
}

// Load fetches the list and the select options. From Idle or Error it
// passes through Fetching; with a form open the form stays open.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	if m.state == Idle || m.state == Error {
		m.state = Fetching
	}
	m.mu.Unlock()
	m.notify()

	records, err := m.cfg.CRUD.List(ctx)
	var options map[string][]Option
	if err == nil {
		options, err = m.loadOptions(ctx)
	}

	m.mu.Lock()
	if !m.mounted || gen != m.gen {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.errMsg = err.Error()
		if m.state == Fetching {
			m.state = Error
		}
		m.mu.Unlock()
		m.log.Warn("load failed", slog.Any("err", err))
		m.notify()
		return err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID() < records[j].ID() })
	m.records = records
	m.options = options
	m.errMsg = ""
	if m.state == Fetching {
		m.state = Idle
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Manager) loadOptions(ctx context.Context) (map[string][]Option, error) {
	out := map[string][]Option{}
	for _, f := range m.cfg.Fields {
		sel, ok := f.(Select)
		if !ok {
			continue
		}
		switch src := sel.Source.(type) {
		case StaticSource:
			out[sel.Key] = src.Options
		case RemoteSource:
			list, err := m.cache.Records(ctx, src.Kind)
			if err != nil {
				return nil, fmt.Errorf("load %s options: %w", sel.Title, err)
			}
			label := src.Label
			if label == nil {
				label = NameLabel
			}
			opts := make([]Option, 0, len(list))
			for _, r := range list {
				opts = append(opts, Option{Value: r.ID(), Label: label(r)})
			}
			out[sel.Key] = opts
		case RangeSource:
			if _, err := m.cache.Records(ctx, src.Kind); err != nil {
				return nil, fmt.Errorf("load %s options: %w", sel.Title, err)
			}
		}
	}
	return out, nil
}

// Records returns a copy of the loaded records.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out
}

// Columns returns the visible field labels.
func (m *Manager) Columns() []string {
	var out []string
	for _, f := range m.cfg.Fields {
		if !f.Hidden() {
			out = append(out, f.Label())
		}
	}
	return out
}

// Rows formats the records for display. Select columns show labels once
// their options are loaded and the raw value until then.
func (m *Manager) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.records))
	for _, r := range m.records {
		row := Row{ID: r.ID()}
		for _, f := range m.cfg.Fields {
			if f.Hidden() {
				continue
			}
			row.Cells = append(row.Cells, m.formatLocked(f, r))
		}
		out = append(out, row)
	}
	return out
}

func (m *Manager) formatLocked(f Field, r Record) string {
	v := r[f.Name()]
	sel, ok := f.(Select)
	if !ok {
		return f.Format(v, nil)
	}
	if _, isRange := sel.Source.(RangeSource); isRange {
		return Number{}.Format(v, nil)
	}
	opts, loaded := m.options[sel.Key]
	if !loaded {
		if isBlank(v) {
			return ""
		}
		return fmt.Sprint(v)
	}
	return sel.Format(v, opts)
}

// OpenCreate opens the create form with a blank draft. The draft id is
// one past the highest loaded id; the backend assigns the real one.
func (m *Manager) OpenCreate() error {
	m.mu.Lock()
	if err := m.canOpenLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	d := Record{}
	for _, f := range m.cfg.Fields {
		d[f.Name()] = f.Default()
	}
	var maxID int64
	for _, r := range m.records {
		if id := r.ID(); id > maxID {
			maxID = id
		}
	}
	d["id"] = maxID + 1
	for k, v := range m.cfg.Preset {
		d[k] = v
	}
	m.draft, m.editID, m.state, m.errMsg = d, 0, CreateOpen, ""
	m.mu.Unlock()
	m.notify()
	return nil
}

// OpenEdit opens the edit form seeded with record id.
func (m *Manager) OpenEdit(id int64) error {
	m.mu.Lock()
	if err := m.canOpenLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	var found Record
	for _, r := range m.records {
		if r.ID() == id {
			found = r.Clone()
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return fmt.Errorf("%s %d: %w", m.cfg.Kind, id, ErrNoRecord)
	}
	for k, v := range m.cfg.Preset {
		found[k] = v
	}
	m.draft, m.editID, m.state, m.errMsg = found, id, EditOpen, ""
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Manager) canOpenLocked() error {
	switch m.state {
	case CreateOpen, EditOpen:
		return ErrPopupOpen
	case Fetching:
		return ErrBusy
	}
	return nil
}

// Cancel closes the form without saving.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	if m.state != CreateOpen && m.state != EditOpen {
		m.mu.Unlock()
		return ErrNoPopup
	}
	m.draft, m.editID, m.state = nil, 0, Idle
	m.mu.Unlock()
	m.notify()
	return nil
}

// Draft returns a copy of the form values.
func (m *Manager) Draft() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil
	}
	return m.draft.Clone()
}

// EditingID is the id under edit, 0 when creating or closed.
func (m *Manager) EditingID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editID
}

func (m *Manager) fieldByName(name string) (Field, bool) {
	for _, f := range m.cfg.Fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Set parses raw for field and stores it in the draft.
func (m *Manager) Set(field, raw string) error {
	f, ok := m.fieldByName(field)
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	v, err := f.Parse(raw)
	if err != nil {
		return err
	}
	return m.SetValue(field, v)
}

// SetValue stores an already typed value, e.g. a chosen Option.Value.
// Range selects that depend on field are cleared when their value falls
// outside the new range.
func (m *Manager) SetValue(field string, v any) error {
	if _, ok := m.fieldByName(field); !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	m.mu.Lock()
	if m.draft == nil {
		m.mu.Unlock()
		return ErrNoPopup
	}
	m.draft[field] = v
	for _, f := range m.cfg.Fields {
		sel, ok := f.(Select)
		if !ok {
			continue
		}
		src, ok := sel.Source.(RangeSource)
		if !ok || src.DependsOn != field || isBlank(m.draft[sel.Key]) {
			continue
		}
		if _, ok := findOption(m.choicesLocked(sel), m.draft[sel.Key]); !ok {
			m.draft[sel.Key] = nil
		}
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

// Choices returns the options of a select field for the current draft.
func (m *Manager) Choices(field string) []Option {
	f, ok := m.fieldByName(field)
	if !ok {
		return nil
	}
	sel, ok := f.(Select)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.choicesLocked(sel)
}

func (m *Manager) choicesLocked(sel Select) []Option {
	src, ok := sel.Source.(RangeSource)
	if !ok {
		return append([]Option(nil), m.options[sel.Key]...)
	}
	if m.draft == nil {
		return nil
	}
	parent, ok := AsInt64(m.draft[src.DependsOn])
	if !ok || parent == 0 {
		return nil
	}
	list, _ := m.cache.Peek(src.Kind)
	for _, r := range list {
		if r.ID() == parent {
			n, _ := AsInt64(r[src.CountField])
			return rangeOptions(n)
		}
	}
	return nil
}

// Validate runs the pre-submit checks on the draft.
func (m *Manager) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return ErrNoPopup
	}
	return m.validateLocked(m.draft)
}

func (m *Manager) validateLocked(d Record) error {
	for _, f := range m.cfg.Fields {
		if err := f.Validate(d[f.Name()]); err != nil {
			return err
		}
		sel, ok := f.(Select)
		if !ok || isBlank(d[sel.Key]) {
			continue
		}
		if _, isRange := sel.Source.(RangeSource); isRange {
			if _, ok := findOption(m.choicesLocked(sel), d[sel.Key]); !ok {
				return &ValidationError{Field: sel.Key, Message: fmt.Sprintf("%s is out of range.", sel.Title)}
			}
		}
	}
	if m.cfg.Validate != nil {
		if err := m.cfg.Validate(d); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return ve
			}
			return &ValidationError{Message: err.Error()}
		}
	}
	return nil
}

// Submit validates the draft and then creates or updates the record. A
// validation failure returns *ValidationError and sends nothing. On
// success the form closes and the kind is invalidated, which reloads this
// table and every table showing it as an option. On a call failure the
// form stays open and Err holds the message.
func (m *Manager) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.state != CreateOpen && m.state != EditOpen {
		m.mu.Unlock()
		return ErrNoPopup
	}
	draft := m.draft.Clone()
	creating := m.state == CreateOpen
	id := m.editID
	if err := m.validateLocked(draft); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	var err error
	if creating {
		_, err = m.cfg.CRUD.Create(ctx, draft)
	} else {
		_, err = m.cfg.CRUD.Update(ctx, id, draft)
	}

	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return err
	}
	if err != nil {
		m.errMsg = err.Error()
		m.mu.Unlock()
		m.log.Warn("save failed", slog.Bool("create", creating), slog.Any("err", err))
		m.notify()
		return err
	}
	m.draft, m.editID, m.state, m.errMsg = nil, 0, Idle, ""
	m.mu.Unlock()
	m.notify()

	m.cache.Invalidate(ctx, m.cfg.Kind)
	return nil
}

// Delete asks confirm with DeletePrompt and removes record id when it
// agrees. A nil confirm deletes without asking.
func (m *Manager) Delete(ctx context.Context, id int64, confirm func(msg string) bool) error {
	if confirm != nil && !confirm(DeletePrompt) {
		return nil
	}
	err := m.cfg.CRUD.Delete(ctx, id)

	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return err
	}
	if err != nil {
		m.errMsg = err.Error()
		m.mu.Unlock()
		m.log.Warn("delete failed", slog.Int64("id", id), slog.Any("err", err))
		m.notify()
		return err
	}
	m.errMsg = ""
	m.mu.Unlock()

	m.cache.Invalidate(ctx, m.cfg.Kind)
	return nil
}
