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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/store"
)

const maxBodyBytes = 1 << 20

// badRequest marks a domain check failure that should surface as 400.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error { return badRequest{msg: fmt.Sprintf(format, args...)} }

// resource wires one store table to its HTTP routes.
type resource[T any] struct {
	repo   store.Repo[T]
	schema *bodySchema
	// check normalizes and validates a decoded body before it is written.
	check func(ctx context.Context, v *T) error
	// created runs after insert, for fields derived from the new id.
	created func(ctx context.Context, v *T) error
}

// handle registers both the slash and no-slash form of path so clients
// never see a redirect.
func handle(g *gin.RouterGroup, method, path string, h gin.HandlerFunc) {
	g.Handle(method, path, h)
	if path == "" || path == "/" {
		alt := "/"
		if path == "/" {
			alt = ""
		}
		g.Handle(method, alt, h)
		return
	}
	if path[len(path)-1] == '/' {
		g.Handle(method, path[:len(path)-1], h)
	} else {
		g.Handle(method, path+"/", h)
	}
}

func register[T any](r *gin.Engine, res resource[T]) {
	g := r.Group("/" + string(res.repo.Kind()))
	handle(g, http.MethodGet, "/", res.list)
	handle(g, http.MethodPost, "/", res.create)
	handle(g, http.MethodGet, "/:id", res.get)
	handle(g, http.MethodPut, "/:id", res.update)
	handle(g, http.MethodDelete, "/:id", res.remove)
}

func (res resource[T]) list(c *gin.Context) {
	out, err := res.repo.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (res resource[T]) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := res.repo.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (res resource[T]) create(c *gin.Context) {
	var v T
	if !res.decode(c, &v, true) {
		return
	}
	res.insert(c, v)
}

// insert runs the checks on an already decoded value and stores it.
func (res resource[T]) insert(c *gin.Context, v T) {
	ctx := c.Request.Context()
	if res.check != nil {
		if err := res.check(ctx, &v); err != nil {
			fail(c, err)
			return
		}
	}
	out, err := res.repo.Create(ctx, v)
	if err != nil {
		fail(c, err)
		return
	}
	if res.created != nil {
		if err := res.created(ctx, &out); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, out)
}

// update merges the body onto the stored row, so omitted fields keep
// their current values.
func (res resource[T]) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cur, err := res.repo.Get(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	if !res.decode(c, &cur, false) {
		return
	}
	if res.check != nil {
		if err := res.check(ctx, &cur); err != nil {
			fail(c, err)
			return
		}
	}
	out, err := res.repo.Update(ctx, id, cur)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (res resource[T]) remove(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := res.repo.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

// decode reads, schema-checks and unmarshals the body into v. It writes
// the 400 response itself and reports whether the handler may continue.
func (res resource[T]) decode(c *gin.Context, v *T, creating bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return false
	}
	if res.schema != nil {
		if err := res.schema.validate(body, creating); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid id %q", c.Param("id"))})
		return 0, false
	}
	return id, true
}

// fail maps store and check errors onto status codes.
func fail(c *gin.Context, err error) {
	var br badRequest
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &br):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrUnsupported):
		code = http.StatusNotImplemented
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": err.Error()})
}

// registerResources mounts the eight CRUD resources with their domain checks.
func (s *Server) registerResources(r *gin.Engine) {
	st := s.store

	register(r, resource[domain.Layout]{
		repo:   st.Layouts(),
		schema: mustSchema(domain.KindLayouts),
		check: func(_ context.Context, l *domain.Layout) error {
			if err := l.Validate(); err != nil {
				return invalid("%s", err)
			}
			return nil
		},
		created: func(ctx context.Context, l *domain.Layout) error {
			if l.Key != "" {
				return nil
			}
			l.Key = strconv.FormatInt(l.ID, 10)
			_, err := st.Layouts().Update(ctx, l.ID, *l)
			return err
		},
	})
	register(r, resource[domain.Dispatcher]{
		repo:   st.Dispatchers(),
		schema: mustSchema(domain.KindDispatchers),
	})
	register(r, resource[domain.District]{
		repo:   st.Districts(),
		schema: mustSchema(domain.KindDistricts),
	})
	register(r, resource[domain.LayoutDistrict]{
		repo:   st.LayoutDistricts(),
		schema: mustSchema(domain.KindLayoutDistricts),
	})
	register(r, resource[domain.LayoutDistrictModule]{
		repo:   st.LayoutDistrictModules(),
		schema: mustSchema(domain.KindLayoutDistrictModules),
		check: func(_ context.Context, m *domain.LayoutDistrictModule) error {
			m.Normalize()
			return nil
		},
	})
	register(r, resource[domain.Module]{
		repo:   st.Modules(),
		schema: mustSchema(domain.KindModules),
		check: func(_ context.Context, m *domain.Module) error {
			m.Normalize()
			if m.Name == "" {
				return invalid("name is required")
			}
			return nil
		},
	})
	register(r, resource[domain.ModuleEndplate]{
		repo:   st.ModuleEndplates(),
		schema: mustSchema(domain.KindModuleEndplates),
		check:  s.checkEndplate,
	})
	register(r, resource[domain.Train]{
		repo:   st.Trains(),
		schema: mustSchema(domain.KindTrains),
	})
}

// checkEndplate enforces the endplate range of the owning module when that
// module exists. A missing module is allowed; it shows up as an orphan.
func (s *Server) checkEndplate(ctx context.Context, e *domain.ModuleEndplate) error {
	owner, err := s.store.Modules().Get(ctx, e.ModuleID)
	if errors.Is(err, store.ErrNotFound) {
		if e.EndplateNumber < 1 {
			return invalid("endplate_number must be at least 1")
		}
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.Validate(owner); err != nil {
		return invalid("%s", err)
	}
	return nil
}

// layoutDistricts serves /layouts/:id/districts, the districts scoped to
// one layout. POST forces layout_id to the path id.
func (s *Server) layoutDistricts(r *gin.Engine) {
	g := r.Group("/layouts/:id")
	districts := resource[domain.District]{repo: s.store.Districts(), schema: mustSchema(domain.KindDistricts)}

	handle(g, http.MethodGet, "/districts", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		out, err := s.store.Districts().ListBy(c.Request.Context(), "layout_id", id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
	handle(g, http.MethodPost, "/districts", func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var d domain.District
		if !districts.decode(c, &d, true) {
			return
		}
		d.LayoutID = domain.ID(id)
		districts.insert(c, d)
	})
}
