/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"traindispatcher/internal/domain"
	applog "traindispatcher/internal/log"
	"traindispatcher/internal/store"
)

const (
	metaOrphanInterval   = "orphan_check_minutes"
	defaultOrphanMinutes = 60
	maxOrphanMinutes     = 7 * 24 * 60
)

// CheckResult is the outcome of one orphan scan.
type CheckResult struct {
	CheckedAt time.Time                      `json:"checked_at"`
	Total     int                            `json:"total"`
	Orphans   map[domain.Kind][]store.Orphan `json:"orphans"`
	Error     string                         `json:"error,omitempty"`
}

// OrphanChecker scans for orphaned rows on an interval kept in the meta
// table. A zero interval disables the periodic scan; Check still works.
type OrphanChecker struct {
	store *store.Store
	log   *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	last     *CheckResult

	reset chan struct{}
}

// NewOrphanChecker loads the persisted interval, falling back to an hour.
func NewOrphanChecker(ctx context.Context, st *store.Store) *OrphanChecker {
	c := &OrphanChecker{
		store:    st,
		log:      applog.WithComponent("orphans"),
		interval: defaultOrphanMinutes * time.Minute,
		reset:    make(chan struct{}, 1),
	}
	v, ok, err := st.GetMeta(ctx, metaOrphanInterval)
	switch {
	case err != nil:
		c.log.Warn("read interval", slog.Any("err", err))
	case ok:
		if n, perr := strconv.Atoi(v); perr == nil && n >= 0 {
			c.interval = time.Duration(n) * time.Minute
		}
	}
	return c
}

// Interval returns the current scan interval.
func (c *OrphanChecker) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// SetMinutes persists the interval and restarts the timer.
func (c *OrphanChecker) SetMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 || minutes > maxOrphanMinutes {
		return invalid("minutes must be between 0 and %d", maxOrphanMinutes)
	}
	if err := c.store.SetMeta(ctx, metaOrphanInterval, strconv.Itoa(minutes)); err != nil {
		return fmt.Errorf("save interval: %w", err)
	}
	c.mu.Lock()
	c.interval = time.Duration(minutes) * time.Minute
	c.mu.Unlock()
	select {
	case c.reset <- struct{}{}:
	default:
	}
	c.log.Info("interval changed", slog.Int("minutes", minutes))
	return nil
}

// Last returns the most recent result, if any scan has run.
func (c *OrphanChecker) Last() (CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return CheckResult{}, false
	}
	return *c.last, true
}

// Check scans now and records the result.
func (c *OrphanChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{CheckedAt: time.Now().UTC()}
	orphans, err := c.store.Orphans(ctx)
	if err != nil {
		res.Error = err.Error()
		c.log.Error("orphan scan failed", slog.Any("err", err))
	} else {
		res.Orphans = orphans
		res.Total = store.OrphanCount(orphans)
		if res.Total > 0 {
			c.log.Warn("orphaned records found", slog.Int("total", res.Total))
		} else {
			c.log.Debug("no orphaned records")
		}
	}
	c.mu.Lock()
	c.last = &res
	c.mu.Unlock()
	return res
}

// Run blocks until ctx is cancelled, scanning once per interval.
func (c *OrphanChecker) Run(ctx context.Context) {
	for {
		var (
			timer *time.Timer
			tick  <-chan time.Time
		)
		if d := c.Interval(); d > 0 {
			timer = time.NewTimer(d)
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-c.reset:
			stopTimer(timer)
		case <-tick:
			c.Check(ctx)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
