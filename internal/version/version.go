/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package version carries the build version and the versions.json file shown
// by the dashboard and the admin overview.
package version

import (
	_ "embed"
	"encoding/json"
	"strings"
)

// Version is overridden at link time: -ldflags "-X traindispatcher/internal/version.Version=1.2.3".
var Version = "dev"

//go:embed versions.json
var versionsJSON []byte

// Versions mirrors versions.json.
type Versions struct {
	Frontend string `json:"frontend_version"`
	Backend  string `json:"backend_version"`
}

// String returns the human readable application version.
func String() string {
	v := strings.TrimSpace(Version)
	if v == "" || v == "dev" {
		if b := Load().Backend; b != "" {
			return b + "-dev"
		}
		return "dev"
	}
	return v
}

// Load parses the embedded versions.json. Missing values fall back to Version.
func Load() Versions {
	var v Versions
	_ = json.Unmarshal(versionsJSON, &v)
	if v.Frontend == "" {
		v.Frontend = Version
	}
	if v.Backend == "" {
		v.Backend = Version
	}
	return v
}

// Raw returns the embedded versions.json bytes as served at /versions.json.
func Raw() []byte {
	out := make([]byte, len(versionsJSON))
	copy(out, versionsJSON)
	return out
}
