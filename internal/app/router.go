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
	"errors"
	"fmt"
	"sync"
)

// Page is a navigation target.
type Page string

const (
	PageDashboard   Page = "dashboard"
	PageAdmin       Page = "admin"
	PageAdminConfig Page = "admin-config"
	PageLayout      Page = "layout"
)

var (
	ErrUnknownPage = errors.New("unknown page")
	ErrNoLayout    = errors.New("no layout selected")
)

// ParsePage accepts any Page value.
func ParsePage(s string) (Page, bool) {
	switch p := Page(s); p {
	case PageDashboard, PageAdmin, PageAdminConfig, PageLayout:
		return p, true
	}
	return "", false
}

// MenuEntry is one item of the navigation dropdown.
type MenuEntry struct {
	Label  string
	Target Page
}

// Menu returns the entries shown on every page.
func Menu() []MenuEntry {
	return []MenuEntry{
		{Label: "App Dashboard", Target: PageDashboard},
		{Label: "Admin", Target: PageAdmin},
		{Label: "Database/Config", Target: PageAdminConfig},
	}
}

// Router holds the current page in memory. The layout page carries the
// selected layout id.
type Router struct {
	mu        sync.Mutex
	page      Page
	layoutID  int64
	listeners []func(Page, int64)
}

// NewRouter starts on start, or on the dashboard when start is not a page
// that can be opened without a selection.
func NewRouter(start Page) *Router {
	if _, ok := ParsePage(string(start)); !ok || start == PageLayout {
		start = PageDashboard
	}
	return &Router{page: start}
}

// Current returns the page and, on the layout page, the layout id.
func (r *Router) Current() (Page, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page, r.layoutID
}

// Navigate switches to p. The layout page needs OpenLayout.
func (r *Router) Navigate(p Page) error {
	switch p {
	case PageLayout:
		return ErrNoLayout
	case PageDashboard, PageAdmin, PageAdminConfig:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPage, p)
	}
	r.set(p, 0)
	return nil
}

// OpenLayout shows the detail page of layout id.
func (r *Router) OpenLayout(id int64) error {
	if id <= 0 {
		return ErrNoLayout
	}
	r.set(PageLayout, id)
	return nil
}

// OnNavigate registers fn to run after every page change.
func (r *Router) OnNavigate(fn func(p Page, layoutID int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Router) set(p Page, id int64) {
	r.mu.Lock()
	r.page, r.layoutID = p, id
	fns := append([]func(Page, int64){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(p, id)
	}
}
