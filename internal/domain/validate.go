/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format of Layout dates.
	DateLayout   = "2006-01-02"
	// MaxEndplates bounds a module's number_of_endplates.
	MaxEndplates = 64
)

// ErrDispatcherRequired is the client-side District check.
var ErrDispatcherRequired = errors.New("You must select a Dispatcher for this District.")

// ValidDate reports whether s is empty or a YYYY-MM-DD date.
func ValidDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidEndplate reports whether n is a valid endplate number for a module
// with count endplates.
func ValidEndplate(n, count int) bool { return n >= 1 && n <= min(count, MaxEndplates) }

// Normalize fills defaults the original forms applied before submit.
func (m *Module) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	if m.NumberOfEndplates <= 0 {
		m.NumberOfEndplates = 1
	}
}

// Normalize fills the endplate default.
func (m *LayoutDistrictModule) Normalize() {
	if m.NumberOfEndplates <= 0 {
		m.NumberOfEndplates = 1
	}
}

// Validate checks date formats, ordering and the state code.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("name is required")
	}
	if !ValidDate(l.StartDate) {
		return fmt.Errorf("start_date %q is not YYYY-MM-DD", l.StartDate)
	}
	if !ValidDate(l.EndDate) {
		return fmt.Errorf("end_date %q is not YYYY-MM-DD", l.EndDate)
	}
	if l.StartDate != "" && l.EndDate != "" && l.EndDate < l.StartDate {
		return errors.New("end_date is before start_date")
	}
	if l.LocationState != "" {
		if _, ok := StateName(l.LocationState); !ok {
			return fmt.Errorf("unknown state %q", l.LocationState)
		}
	}
	return nil
}

// Validate checks the endplate number against the owning module's count.
func (e ModuleEndplate) Validate(owner Module) error {
	if e.ModuleID != owner.ID {
		return fmt.Errorf("endplate belongs to module %d, not %d", e.ModuleID, owner.ID)
	}
	if !ValidEndplate(e.EndplateNumber, owner.NumberOfEndplates) {
		return fmt.Errorf("endplate_number must be between 1 and %d", min(owner.NumberOfEndplates, MaxEndplates))
	}
	return nil
}

// CheckDispatcher is the pre-submit District check.
func (d District) CheckDispatcher() error {
	if IDValue(d.DispatcherID) == 0 {
		return ErrDispatcherRequired
	}
	return nil
}
