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
	"context"
	"strings"
	"sync"

	"traindispatcher/internal/api"
)

// Admin is the system overview. The status is fetched once per mount and
// kept until the page is mounted again.
type Admin struct {
	app *App

	once   sync.Once
	mu     sync.Mutex
	status *api.Status
	err    error
}

// Admin mounts a fresh overview.
func (a *App) Admin() *Admin { return &Admin{app: a} }

// Load fetches /status on the first call and returns the cached result
// afterwards.
func (p *Admin) Load(ctx context.Context) error {
	p.once.Do(func() {
		st, err := p.app.client.Status(ctx)
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.err = err
			return
		}
		p.status = &st
	})
	return p.Err()
}

// Status returns the loaded status, if any.
func (p *Admin) Status() (api.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return api.Status{}, false
	}
	return *p.status, true
}

func (p *Admin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ErrText is the inline error line, or "".
func (p *Admin) ErrText() string {
	if err := p.Err(); err != nil {
		return "Error connecting to backend: " + err.Error()
	}
	return ""
}

// IPs renders the backend addresses, or "Unknown".
func (p *Admin) IPs() string {
	st, ok := p.Status()
	if !ok || len(st.IP) == 0 {
		return UnknownVersionText
	}
	return strings.Join(st.IP, ", ")
}

// OpenConfig goes to the configuration page.
func (p *Admin) OpenConfig() error { return p.app.router.Navigate(PageAdminConfig) }
