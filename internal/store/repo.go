/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"traindispatcher/internal/domain"
)

// Repo is the CRUD surface for one entity table.
type Repo[T any] struct {
	s *Store
	c codec[T]
}

// Kind returns the entity type stored by this repo.
func (r Repo[T]) Kind() domain.Kind { return r.c.table.Kind }

func (r Repo[T]) selectSQL() string {
	return "SELECT id, " + strings.Join(r.c.table.columnNames(), ", ") + " FROM " + string(r.c.table.Kind)
}

// List returns every row ordered by id.
func (r Repo[T]) List(ctx context.Context) ([]T, error) {
	return r.query(ctx, r.selectSQL()+" ORDER BY id")
}

// ListBy returns rows whose foreign key column equals id.
func (r Repo[T]) ListBy(ctx context.Context, column string, id int64) ([]T, error) {
	if !r.c.table.hasColumn(column) {
		return nil, fmt.Errorf("%s has no column %q", r.c.table.Kind, column)
	}
	return r.query(ctx, r.selectSQL()+" WHERE "+column+" = ? ORDER BY id", id)
}

func (r Repo[T]) query(ctx context.Context, q string, args ...any) ([]T, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.c.table.Kind, err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]T, 0)
	for rows.Next() {
		v, err := r.c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.c.table.Kind, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.c.table.Kind, err)
	}
	return out, nil
}

// Get returns the row with id or ErrNotFound.
func (r Repo[T]) Get(ctx context.Context, id int64) (T, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, err := r.c.scan(r.s.db.QueryRowContext(ctx, r.s.rebind(r.selectSQL()+" WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s %d: %w", r.c.table.Kind, id, ErrNotFound)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s %d: %w", r.c.table.Kind, id, err)
	}
	return v, nil
}

// Create inserts v, ignoring any id it carries, and returns it with the
// assigned id.
func (r Repo[T]) Create(ctx context.Context, v T) (T, error) {
	cols := r.c.table.columnNames()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", r.c.table.Kind, strings.Join(cols, ", "), marks)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var id int64
	if err := r.s.db.QueryRowContext(ctx, r.s.rebind(q), r.c.values(v)...).Scan(&id); err != nil {
		return v, fmt.Errorf("create %s: %w", r.c.table.Kind, err)
	}
	r.c.setID(&v, id)
	return v, nil
}

// Update overwrites every column of row id with v.
func (r Repo[T]) Update(ctx context.Context, id int64, v T) (T, error) {
	cols := r.c.table.columnNames()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.c.table.Kind, strings.Join(sets, ", "))
	args := append(r.c.values(v), id)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, err := r.s.db.ExecContext(ctx, r.s.rebind(q), args...)
	if err != nil {
		return v, fmt.Errorf("update %s %d: %w", r.c.table.Kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return v, fmt.Errorf("%s %d: %w", r.c.table.Kind, id, ErrNotFound)
	}
	r.c.setID(&v, id)
	return v, nil
}

// Delete removes row id. Rows referencing it are left alone.
func (r Repo[T]) Delete(ctx context.Context, id int64) error {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, err := r.s.db.ExecContext(ctx, r.s.rebind("DELETE FROM "+string(r.c.table.Kind)+" WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", r.c.table.Kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %d: %w", r.c.table.Kind, id, ErrNotFound)
	}
	return nil
}
