/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package report renders printable handouts for an operating session.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"traindispatcher/internal/domain"
)

// Roster is the data behind a layout's dispatcher roster sheet.
type Roster struct {
	Layout      domain.Layout
	Districts   []domain.District
	Dispatchers []domain.Dispatcher
	Modules     []domain.Module
}

// column widths in points on a US Letter page with 36pt margins
var rosterCols = []struct {
	title string
	width float64
}{
	{"District", 150},
	{"Channel / Frequency", 110},
	{"Dispatcher", 140},
	{"Cell", 90},
	{"Modules", 50},
}

// WriteRosterPDF renders the roster as a single-table PDF. Districts are
// sorted by name; a district whose dispatcher no longer exists shows
// "(unassigned)".
func WriteRosterPDF(w io.Writer, r Roster) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 612, Ht: 792}})
	pdf.SetTitle(fmt.Sprintf("%s - Dispatcher Roster", r.Layout.Name), true)
	pdf.SetAuthor("Train Dispatcher", true)
	pdf.SetMargins(36, 36, 36)
	pdf.SetAutoPageBreak(true, 36)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 24, tr(r.Layout.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if sub := subtitle(r.Layout); sub != "" {
		pdf.CellFormat(0, 16, tr(sub), "", 1, "L", false, 0, "")
	}
	pdf.Ln(10)

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range rosterCols {
			pdf.CellFormat(c.width, 18, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	header()

	byID := make(map[int64]domain.Dispatcher, len(r.Dispatchers))
	for _, d := range r.Dispatchers {
		byID[d.ID] = d
	}
	moduleCount := map[int64]int{}
	for _, m := range r.Modules {
		if m.DistrictID != nil {
			moduleCount[*m.DistrictID]++
		}
	}
	districts := append([]domain.District(nil), r.Districts...)
	sort.SliceStable(districts, func(i, j int) bool {
		return strings.ToLower(districts[i].Name) < strings.ToLower(districts[j].Name)
	})

	_, pageH := pdf.GetPageSize()
	for _, d := range districts {
		if pdf.GetY()+18 > pageH-36 {
			pdf.AddPage()
			header()
		}
		name, cell := "(unassigned)", ""
		if disp, ok := byID[domain.IDValue(d.DispatcherID)]; ok {
			name, cell = disp.DisplayName(), disp.CellNumber
		}
		row := []string{d.Name, d.ChannelOrFrequency, name, cell, fmt.Sprint(moduleCount[d.ID])}
		for i, c := range rosterCols {
			pdf.CellFormat(c.width, 18, tr(row[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(districts) == 0 {
		pdf.CellFormat(0, 18, "No districts assigned to this layout.", "", 1, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render roster: %w", err)
	}
	return pdf.Output(w)
}

func subtitle(l domain.Layout) string {
	var parts []string
	loc := strings.TrimSpace(l.LocationCity)
	if st, ok := domain.StateName(l.LocationState); ok {
		if loc != "" {
			loc += ", "
		}
		loc += st
	}
	if loc != "" {
		parts = append(parts, loc)
	}
	switch {
	case l.StartDate != "" && l.EndDate != "" && l.StartDate != l.EndDate:
		parts = append(parts, l.StartDate+" to "+l.EndDate)
	case l.StartDate != "":
		parts = append(parts, l.StartDate)
	}
	return strings.Join(parts, " | ")
}
