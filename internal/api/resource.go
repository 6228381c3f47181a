/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"net/http"

	"traindispatcher/internal/domain"
)

// Resource is the list/create/update/delete surface of one collection.
// Collection calls go to collPath; item calls go to itemPath/{id}. The
// two differ only for nested collections such as a layout's districts.
type Resource[T any] struct {
	c        *Client
	kind     domain.Kind
	collPath string
	itemPath string
}

// NewResource binds a collection of kind at its top-level path.
func NewResource[T any](c *Client, kind domain.Kind) Resource[T] {
	p := "/" + string(kind)
	return Resource[T]{c: c, kind: kind, collPath: p, itemPath: p}
}

// Kind is the entity type served by the resource.
func (r Resource[T]) Kind() domain.Kind { return r.kind }

// Path is the collection path, e.g. "/layouts/3/districts".
func (r Resource[T]) Path() string { return r.collPath }

// List returns the whole collection.
func (r Resource[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	if err := r.c.doJSON(ctx, http.MethodGet, r.collPath+"/", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Create posts v and returns the stored record.
func (r Resource[T]) Create(ctx context.Context, v T) (T, error) {
	var out T
	err := r.c.doJSON(ctx, http.MethodPost, r.collPath+"/", v, &out)
	return out, err
}

// Update replaces record id with v and returns the stored record.
func (r Resource[T]) Update(ctx context.Context, id int64, v T) (T, error) {
	var out T
	err := r.c.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/%d", r.itemPath, id), v, &out)
	return out, err
}

// Delete removes record id.
func (r Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", r.itemPath, id), nil, nil)
}

func (c *Client) Layouts() Resource[domain.Layout] {
	return NewResource[domain.Layout](c, domain.KindLayouts)
}

func (c *Client) Dispatchers() Resource[domain.Dispatcher] {
	return NewResource[domain.Dispatcher](c, domain.KindDispatchers)
}

func (c *Client) Districts() Resource[domain.District] {
	return NewResource[domain.District](c, domain.KindDistricts)
}

func (c *Client) LayoutDistrictLinks() Resource[domain.LayoutDistrict] {
	return NewResource[domain.LayoutDistrict](c, domain.KindLayoutDistricts)
}

func (c *Client) LayoutDistrictModules() Resource[domain.LayoutDistrictModule] {
	return NewResource[domain.LayoutDistrictModule](c, domain.KindLayoutDistrictModules)
}

func (c *Client) Modules() Resource[domain.Module] {
	return NewResource[domain.Module](c, domain.KindModules)
}

func (c *Client) ModuleEndplates() Resource[domain.ModuleEndplate] {
	return NewResource[domain.ModuleEndplate](c, domain.KindModuleEndplates)
}

func (c *Client) Trains() Resource[domain.Train] {
	return NewResource[domain.Train](c, domain.KindTrains)
}

// LayoutDistricts is the districts collection scoped to one layout. Items
// are still edited and deleted through /districts/{id}.
func (c *Client) LayoutDistricts(layoutID int64) Resource[domain.District] {
	return Resource[domain.District]{
		c:        c,
		kind:     domain.KindDistricts,
		collPath: fmt.Sprintf("/layouts/%d/districts", layoutID),
		itemPath: "/" + string(domain.KindDistricts),
	}
}
