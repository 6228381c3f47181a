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

import "strings"

// Kind names an entity type. The value doubles as the REST resource path
// segment and the table name.
type Kind string

const (
	KindLayouts               Kind = "layouts"
	KindDispatchers           Kind = "dispatchers"
	KindDistricts             Kind = "districts"
	KindLayoutDistricts       Kind = "layout_districts"
	KindLayoutDistrictModules Kind = "layout_district_modules"
	KindModules               Kind = "modules"
	KindModuleEndplates       Kind = "module_endplates"
	KindTrains                Kind = "trains"
)

// Kinds lists every entity type, parents before children.
var Kinds = []Kind{
	KindLayouts,
	KindDispatchers,
	KindDistricts,
	KindLayoutDistricts,
	KindLayoutDistrictModules,
	KindModules,
	KindModuleEndplates,
	KindTrains,
}

// ParseKind accepts a resource name with or without surrounding slashes.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.Trim(strings.TrimSpace(s), "/"))
	return k, k.Valid()
}

// Valid reports whether k is a known entity type.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Label is the human title, e.g. "Layout District Modules".
func (k Kind) Label() string {
	parts := strings.Split(string(k), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// Relation is a foreign key: From.Field references To.id.
type Relation struct {
	From  Kind   `json:"from"`
	Field string `json:"field"`
	To    Kind   `json:"to"`
}

// Relations is the foreign-key graph. There is no cascade on delete; rows
// whose target vanished are orphans.
var Relations = []Relation{
	{From: KindDistricts, Field: "layout_id", To: KindLayouts},
	{From: KindDistricts, Field: "dispatcher_id", To: KindDispatchers},
	{From: KindLayoutDistricts, Field: "layout_id", To: KindLayouts},
	{From: KindLayoutDistricts, Field: "district_id", To: KindDistricts},
	{From: KindLayoutDistrictModules, Field: "layout_district_id", To: KindLayoutDistricts},
	{From: KindModules, Field: "district_id", To: KindDistricts},
	{From: KindModuleEndplates, Field: "module_id", To: KindModules},
	{From: KindModuleEndplates, Field: "connected_module_id", To: KindModules},
}

// RelationsFrom returns the foreign keys declared on k.
func RelationsFrom(k Kind) []Relation {
	var out []Relation
	for _, r := range Relations {
		if r.From == k {
			out = append(out, r)
		}
	}
	return out
}

// Dependents returns the kinds holding a foreign key into k, each once.
func Dependents(k Kind) []Kind {
	var out []Kind
	seen := map[Kind]bool{}
	for _, r := range Relations {
		if r.To == k && !seen[r.From] {
			seen[r.From] = true
			out = append(out, r.From)
		}
	}
	return out
}
