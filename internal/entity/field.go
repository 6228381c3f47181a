/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package entity

import (
	"fmt"
	"strconv"
	"strings"

	"traindispatcher/internal/domain"
)

// Field describes one form input and table column. The set of
// implementations is closed: Text, Number, Date, Checkbox and Select.
type Field interface {
	Name() string
	Label() string
	// Hidden fields are kept in the draft but not shown, e.g. a preset parent id.
	Hidden() bool
	// Parse converts form input into the record value.
	Parse(raw string) (any, error)
	// Validate checks a value before submit.
	Validate(v any) error
	// Format renders a value for the table. opts are the loaded choices of a
	// select field and are ignored by the others.
	Format(v any, opts []Option) string
	// Default seeds a blank draft.
	Default() any

	field()
}

// Option is one select choice.
type Option struct {
	Value any
	Label string
}

func requiredMsg(label, custom string) string {
	if custom != "" {
		return custom
	}
	return label + " is required."
}

// Text is a free text input.
type Text struct {
	Key, Title string
	Required   bool
	Message    string
	Hide       bool
}

func (f Text) Name() string  { return f.Key }
func (f Text) Label() string { return f.Title }
func (f Text) Hidden() bool  { return f.Hide }
func (f Text) Default() any  { return "" }
func (Text) field()          {}

func (f Text) Parse(raw string) (any, error) { return raw, nil }

func (f Text) Validate(v any) error {
	s, _ := v.(string)
	if f.Required && strings.TrimSpace(s) == "" {
		return &ValidationError{Field: f.Key, Message: requiredMsg(f.Title, f.Message)}
	}
	return nil
}

func (f Text) Format(v any, _ []Option) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Number is an integer input with optional bounds.
type Number struct {
	Key, Title string
	Required   bool
	Min, Max   *int64
	Initial    int64
	Hide       bool
}

func (f Number) Name() string  { return f.Key }
func (f Number) Label() string { return f.Title }
func (f Number) Hidden() bool  { return f.Hide }
func (f Number) Default() any  { return f.Initial }
func (Number) field()          {}

func (f Number) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: f.Key, Message: f.Title + " must be a whole number."}
	}
	return n, nil
}

func (f Number) Validate(v any) error {
	n, ok := AsInt64(v)
	if !ok {
		if f.Required {
			return &ValidationError{Field: f.Key, Message: requiredMsg(f.Title, "")}
		}
		return nil
	}
	if f.Min != nil && n < *f.Min {
		return &ValidationError{Field: f.Key, Message: fmt.Sprintf("%s must be at least %d.", f.Title, *f.Min)}
	}
	if f.Max != nil && n > *f.Max {
		return &ValidationError{Field: f.Key, Message: fmt.Sprintf("%s must be at most %d.", f.Title, *f.Max)}
	}
	return nil
}

func (f Number) Format(v any, _ []Option) string {
	if n, ok := AsInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// Date is a YYYY-MM-DD input.
type Date struct {
	Key, Title string
	Required   bool
}

func (f Date) Name() string  { return f.Key }
func (f Date) Label() string { return f.Title }
func (f Date) Hidden() bool  { return false }
func (f Date) Default() any  { return "" }
func (Date) field()          {}

func (f Date) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if !domain.ValidDate(raw) {
		return nil, &ValidationError{Field: f.Key, Message: f.Title + " must be a date (YYYY-MM-DD)."}
	}
	return raw, nil
}

func (f Date) Validate(v any) error {
	s, _ := v.(string)
	if s == "" {
		if f.Required {
			return &ValidationError{Field: f.Key, Message: requiredMsg(f.Title, "")}
		}
		return nil
	}
	if !domain.ValidDate(s) {
		return &ValidationError{Field: f.Key, Message: f.Title + " must be a date (YYYY-MM-DD)."}
	}
	return nil
}

func (f Date) Format(v any, _ []Option) string {
	s, _ := v.(string)
	return s
}

// Checkbox is a boolean flag.
type Checkbox struct {
	Key, Title string
}

func (f Checkbox) Name() string  { return f.Key }
func (f Checkbox) Label() string { return f.Title }
func (f Checkbox) Hidden() bool  { return false }
func (f Checkbox) Default() any  { return false }
func (Checkbox) field()          {}

func (f Checkbox) Parse(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on", "x":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	}
	return nil, &ValidationError{Field: f.Key, Message: f.Title + " must be yes or no."}
}

func (f Checkbox) Validate(any) error { return nil }

func (f Checkbox) Format(v any, _ []Option) string {
	if b, _ := v.(bool); b {
		return "True"
	}
	return "False"
}

// Select picks one value from an option source.
type Select struct {
	Key, Title string
	Source     OptionSource
	Required   bool
	// Message replaces the generic "is required" text.
	Message string
	Hide    bool
}

func (f Select) Name() string  { return f.Key }
func (f Select) Label() string { return f.Title }
func (f Select) Hidden() bool  { return f.Hide }
func (Select) field()          {}

func (f Select) Default() any {
	if st, ok := f.Source.(StaticSource); ok && f.Required && len(st.Options) > 0 {
		return st.Options[0].Value
	}
	return nil
}

// Parse maps a raw value to the option value. Static options match on their
// printed value; remote and range options are integer ids.
func (f Select) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if st, ok := f.Source.(StaticSource); ok {
		for _, o := range st.Options {
			if fmt.Sprint(o.Value) == raw {
				return o.Value, nil
			}
		}
		return nil, &ValidationError{Field: f.Key, Message: fmt.Sprintf("%q is not a valid %s.", raw, f.Title)}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: f.Key, Message: fmt.Sprintf("%q is not a valid %s.", raw, f.Title)}
	}
	return n, nil
}

func (f Select) Validate(v any) error {
	if f.Required && isBlank(v) {
		return &ValidationError{Field: f.Key, Message: requiredMsg(f.Title, f.Message)}
	}
	return nil
}

// Format shows the option label. A value with no matching option, such
// as an id whose record was deleted, is marked missing.
func (f Select) Format(v any, opts []Option) string {
	if isBlank(v) {
		return ""
	}
	if o, ok := findOption(opts, v); ok {
		return o.Label
	}
	return fmt.Sprintf("#%v (missing)", v)
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	n, ok := AsInt64(v)
	return ok && n == 0
}

func sameValue(a, b any) bool {
	if x, ok := AsInt64(a); ok {
		if y, ok := AsInt64(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func findOption(opts []Option, v any) (Option, bool) {
	for _, o := range opts {
		if sameValue(o.Value, v) {
			return o, true
		}
	}
	return Option{}, false
}

// OptionSource says where a Select gets its choices. It is one of
// StaticSource, RemoteSource or RangeSource.
type OptionSource interface{ source() }

// StaticSource is a fixed list.
type StaticSource struct{ Options []Option }

// RemoteSource lists the records of another kind, labeled by Label.
type RemoteSource struct {
	Kind  domain.Kind
	Label func(Record) string
}

// RangeSource offers 1..N where N is CountField of the Kind record selected
// in field DependsOn.
type RangeSource struct {
	DependsOn  string
	Kind       domain.Kind
	CountField string
}

func (StaticSource) source() {}
func (RemoteSource) source() {}
func (RangeSource) source()  {}

func Static(opts ...Option) OptionSource { return StaticSource{Options: opts} }

func Remote(kind domain.Kind, label func(Record) string) OptionSource {
	return RemoteSource{Kind: kind, Label: label}
}

func Range(dependsOn string, kind domain.Kind, countField string) OptionSource {
	return RangeSource{DependsOn: dependsOn, Kind: kind, CountField: countField}
}

// NameLabel labels a record by its "name" field.
func NameLabel(r Record) string {
	s, _ := r["name"].(string)
	return s
}

// rangeOptions builds 1..n, with n capped at domain.MaxEndplates.
func rangeOptions(n int64) []Option {
	if n <= 0 {
		return nil
	}
	n = min(n, domain.MaxEndplates)
	out := make([]Option, 0, n)
	for i := int64(1); i <= n; i++ {
		out = append(out, Option{Value: i, Label: strconv.FormatInt(i, 10)})
	}
	return out
}

// Bound returns a pointer for Number.Min and Number.Max.
func Bound(v int64) *int64 { return &v }
