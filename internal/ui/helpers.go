/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"fmt"

	"traindispatcher/internal/app"
	"traindispatcher/internal/entity"
)

// noneLabel is the select entry that clears an optional reference.
const noneLabel = "(none)"

const (
	minWindowWidth  = 800
	minWindowHeight = 600
)

// windowSize clamps a persisted window size to the minimum.
func windowSize(w, h int) (int, int) {
	return max(w, minWindowWidth), max(h, minWindowHeight)
}

// optionLabels lists the select entries for opts. Optional selects get a
// leading noneLabel.
func optionLabels(opts []entity.Option, required bool) []string {
	out := make([]string, 0, len(opts)+1)
	if !required {
		out = append(out, noneLabel)
	}
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

// optionValue maps a chosen label back to its value. noneLabel maps to nil.
func optionValue(opts []entity.Option, label string) (any, bool) {
	if label == noneLabel {
		return nil, true
	}
	for _, o := range opts {
		if o.Label == label {
			return o.Value, true
		}
	}
	return nil, false
}

// orphanText renders the orphan report for an information dialog.
func orphanText(lines []app.OrphanLine) string {
	if len(lines) == 0 {
		return "No orphaned records."
	}
	s := ""
	for _, l := range lines {
		s += fmt.Sprintf("%s #%d: %s -> #%d\n", l.Kind, l.ID, l.Field, l.MissingID)
	}
	return s
}
