/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// TestInitWritesJSONFile checks the rotating sink gets JSON records carrying
// static, component and request attributes.
func TestInitWritesJSONFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "td.log")
	Init(Options{Level: "debug", File: fpath, Console: io.Discard})
	t.Cleanup(func() {
		_ = Close()
		Init(Options{Console: io.Discard})
	})

	l := WithOperation(WithComponent("store"), "open")
	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.InfoContext(ctx, "db ready", slog.String("driver", "sqlite"))
	if err := Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	lines, err := Tail(fpath, 1)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "traindispatcher" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "store" || m["op"] != "open" {
		t.Fatalf("component/op mismatch: %v", m)
	}
	if m["request_id"] != "req-1" {
		t.Fatalf("request_id not enriched: %v", m["request_id"])
	}
	if m["msg"] != "db ready" || m["driver"] != "sqlite" {
		t.Fatalf("record mismatch: %v", m)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvSource, "1")
	if err := os.Unsetenv(EnvFile); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("TD_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}
