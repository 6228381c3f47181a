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
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"traindispatcher/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// bodySchema validates request bodies for one resource. Updates merge onto
// the stored row, so they use the same schema without its required list.
type bodySchema struct {
	create *gojsonschema.Schema
	update *gojsonschema.Schema
}

func loadSchema(k domain.Kind) (*bodySchema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + string(k) + ".json")
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", k, err)
	}
	create, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", k, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", k, err)
	}
	delete(doc, "required")
	update, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile update schema %s: %w", k, err)
	}
	return &bodySchema{create: create, update: update}, nil
}

func mustSchema(k domain.Kind) *bodySchema {
	s, err := loadSchema(k)
	if err != nil {
		panic(err)
	}
	return s
}

// validate returns nil for a conforming body and a readable error listing
// every violation otherwise.
func (b *bodySchema) validate(body []byte, creating bool) error {
	sc := b.update
	if creating {
		sc = b.create
	}
	res, err := sc.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
