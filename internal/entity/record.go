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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is one entity as a field map. Integers are int64, strings are
// string, flags are bool and unset optional ids are nil.
type Record map[string]any

// Clone copies the top level of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record's id or 0.
func (r Record) ID() int64 {
	n, _ := AsInt64(r["id"])
	return n
}

// AsInt64 converts the numeric shapes a Record may hold.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// CRUD is the untyped data access a Manager drives.
type CRUD interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, r Record) (Record, error)
	Update(ctx context.Context, id int64, r Record) (Record, error)
	Delete(ctx context.Context, id int64) error
}

// Typed is the shape of api.Resource[T].
type Typed[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, v T) (T, error)
	Update(ctx context.Context, id int64, v T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Bind adapts a typed resource to CRUD by round-tripping through JSON.
func Bind[T any](res Typed[T]) CRUD { return bound[T]{res: res} }

type bound[T any] struct{ res Typed[T] }

func (b bound[T]) List(ctx context.Context) ([]Record, error) {
	list, err := b.res.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(list))
	for _, v := range list {
		r, err := ToRecord(v)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (b bound[T]) Create(ctx context.Context, r Record) (Record, error) {
	v, err := FromRecord[T](r)
	if err != nil {
		return nil, err
	}
	got, err := b.res.Create(ctx, v)
	if err != nil {
		return nil, err
	}
	return ToRecord(got)
}

func (b bound[T]) Update(ctx context.Context, id int64, r Record) (Record, error) {
	v, err := FromRecord[T](r)
	if err != nil {
		return nil, err
	}
	got, err := b.res.Update(ctx, id, v)
	if err != nil {
		return nil, err
	}
	return ToRecord(got)
}

func (b bound[T]) Delete(ctx context.Context, id int64) error { return b.res.Delete(ctx, id) }

// ToRecord converts a struct with json tags into a Record.
func ToRecord(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	out := make(Record, len(m))
	for k, val := range m {
		if n, ok := val.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				out[k] = i
				continue
			}
			f, _ := n.Float64()
			out[k] = f
			continue
		}
		out[k] = val
	}
	return out, nil
}

// FromRecord converts a Record back into T.
func FromRecord[T any](r Record) (T, error) {
	var v T
	raw, err := json.Marshal(r)
	if err != nil {
		return v, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode record: %w", err)
	}
	return v, nil
}
