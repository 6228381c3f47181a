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

// This file defines the railroad operations records exchanged between the
// backend and the client. They are plain records with no behavior beyond
// display names and field checks; ids are assigned by the backend.

// Dispatcher is a person who runs a district during an operating session.
type Dispatcher struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	CellNumber string `json:"cell_number"`
}

// DisplayName renders "First Last".
func (d Dispatcher) DisplayName() string { return joinName(d.FirstName, d.LastName) }

// District is a section of railroad controlled by one dispatcher. LayoutID
// scopes it to a layout; DispatcherID is required by the client but the
// backend accepts nulls so orphaned rows can exist.
type District struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ChannelOrFrequency string `json:"channel_or_frequency"`
	LayoutID           *int64 `json:"layout_id"`
	DispatcherID       *int64 `json:"dispatcher_id"`
}

// Layout is an operating event or session that groups districts and modules.
type Layout struct {
	ID            int64  `json:"id"`
	Key           string `json:"key"`
	Name          string `json:"name"`
	StartDate     string `json:"start_date"` // YYYY-MM-DD
	EndDate       string `json:"end_date"`
	LocationCity  string `json:"location_city"`
	LocationState string `json:"location_state"` // two-letter US state code
}

// LayoutDistrict joins a district into a layout.
type LayoutDistrict struct {
	ID         int64 `json:"id"`
	LayoutID   int64 `json:"layout_id"`
	DistrictID int64 `json:"district_id"`
}

// LayoutDistrictModule is a module registered for a layout district,
// identified by the owner's module key rather than a Module row.
type LayoutDistrictModule struct {
	ID                int64  `json:"id"`
	LayoutDistrictID  int64  `json:"layout_district_id"`
	ModuleKey         string `json:"module_key"`
	Name              string `json:"name"`
	OwnerName         string `json:"owner_name"`
	OwnerEmail        string `json:"owner_email"`
	Category          string `json:"category"`
	NumberOfEndplates int    `json:"number_of_endplates"`
}

// Module is a physical piece of layout owned by a member.
type Module struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	DistrictID        *int64 `json:"district_id"`
	NumberOfEndplates int    `json:"number_of_endplates"`
	Owner             string `json:"owner"`
	OwnerEmail        string `json:"owner_email"`
	IsYard            bool   `json:"is_yard"`
}

// ModuleEndplate is one connector position on a module, optionally linked
// to another module.
type ModuleEndplate struct {
	ID                int64  `json:"id"`
	ModuleID          int64  `json:"module_id"`
	EndplateNumber    int    `json:"endplate_number"`
	ConnectedModuleID *int64 `json:"connected_module_id"`
}

// Train is a scheduled train and its current status.
type Train struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ID returns a pointer to v for optional foreign keys.
func ID(v int64) *int64 { return &v }

// IDValue dereferences an optional id, 0 meaning unset.
func IDValue(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
