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
	"context"
	"fmt"
	"log/slog"
	"sync"

	"traindispatcher/internal/domain"
	applog "traindispatcher/internal/log"
)

// Cache holds the lists used as select options and fans out invalidations.
// Invalidate(k) drops the cached list of k and notifies the subscribers of
// k and of every kind that holds a foreign key into k.
type Cache struct {
	mu      sync.Mutex
	sources map[domain.Kind]CRUD
	data    map[domain.Kind][]Record
	subs    map[domain.Kind]map[int]Subscriber
	nextID  int
	log     *slog.Logger
}

// Subscriber is called after an invalidation that concerns it. kind is the
// kind that changed.
type Subscriber func(ctx context.Context, kind domain.Kind)

func NewCache() *Cache {
	return &Cache{
		sources: map[domain.Kind]CRUD{},
		data:    map[domain.Kind][]Record{},
		subs:    map[domain.Kind]map[int]Subscriber{},
		log:     applog.WithComponent("entity.cache"),
	}
}

// Register sets where records of kind are loaded from.
func (c *Cache) Register(kind domain.Kind, src CRUD) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[kind] = src
	delete(c.data, kind)
}

// Records returns the cached list of kind, loading it on first use.
func (c *Cache) Records(ctx context.Context, kind domain.Kind) ([]Record, error) {
	c.mu.Lock()
	if list, ok := c.data[kind]; ok {
		c.mu.Unlock()
		return list, nil
	}
	src := c.sources[kind]
	c.mu.Unlock()
	if src == nil {
		return nil, fmt.Errorf("no source registered for %s", kind)
	}

	list, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.data[kind] = list
	c.mu.Unlock()
	return list, nil
}

// Peek returns the cached list without loading.
func (c *Cache) Peek(kind domain.Kind) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.data[kind]
	return list, ok
}

// Subscribe registers fn for invalidations of kind. The returned func
// removes it.
func (c *Cache) Subscribe(kind domain.Kind, fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.subs[kind] == nil {
		c.subs[kind] = map[int]Subscriber{}
	}
	c.subs[kind][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[kind], id)
	}
}

// Invalidate drops kind and calls each affected subscriber once, in the
// calling goroutine.
func (c *Cache) Invalidate(ctx context.Context, kind domain.Kind) {
	c.mu.Lock()
	delete(c.data, kind)
	affected := append([]domain.Kind{kind}, domain.Dependents(kind)...)
	seen := map[int]bool{}
	var calls []Subscriber
	for _, k := range affected {
		for id, fn := range c.subs[k] {
			if !seen[id] {
				seen[id] = true
				calls = append(calls, fn)
			}
		}
	}
	c.mu.Unlock()

	c.log.Debug("invalidate", slog.String("kind", string(kind)), slog.Int("subscribers", len(calls)))
	for _, fn := range calls {
		fn(ctx, kind)
	}
}

// Reset drops every cached list and calls every subscription with an empty
// kind, as after the whole database was replaced.
func (c *Cache) Reset(ctx context.Context) {
	c.mu.Lock()
	c.data = map[domain.Kind][]Record{}
	var calls []Subscriber
	for _, k := range domain.Kinds {
		for _, fn := range c.subs[k] {
			calls = append(calls, fn)
		}
	}
	c.mu.Unlock()

	c.log.Debug("reset", slog.Int("subscribers", len(calls)))
	for _, fn := range calls {
		fn(ctx, "")
	}
}
