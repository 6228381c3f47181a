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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "traindispatcher/internal/log"
)

// ErrNoBridgeURL is returned when the bridge answers with an empty URL.
var ErrNoBridgeURL = errors.New("bridge returned no backend url")

// Bridge supplies the backend URL from the desktop shell.
type Bridge interface {
	BackendURL(ctx context.Context) (string, error)
}

// ResolverOptions configures base URL resolution. The zero value probes
// http://localhost:8001 without discovery.
type ResolverOptions struct {
	Bridge       Bridge
	Override     string
	ProbeHost    string
	ProbePort    int
	Discovery    bool
	ProbeTimeout time.Duration
}

// Resolver finds the backend base URL once and caches it.
type Resolver struct {
	opts ResolverOptions
	http *http.Client
	log  *slog.Logger

	mu     sync.Mutex
	cached string
	err    error
	done   bool

	probes atomic.Int64
}

// NewResolver applies defaults to opts.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.ProbeHost == "" {
		opts.ProbeHost = "localhost"
	}
	if opts.ProbePort == 0 {
		opts.ProbePort = 8001
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 1500 * time.Millisecond
	}
	return &Resolver{
		opts: opts,
		http: &http.Client{Timeout: opts.ProbeTimeout},
		log:  applog.WithComponent("resolver"),
	}
}

// StaticResolver always returns url and never probes.
func StaticResolver(url string) *Resolver {
	r := NewResolver(ResolverOptions{Override: url})
	r.cached, r.done = strings.TrimRight(url, "/"), true
	return r
}

// Probes counts the HTTP requests made while resolving.
func (r *Resolver) Probes() int64 { return r.probes.Load() }

// Resolve returns the cached result or works it out. With a bridge, its
// answer is final, errors included. Otherwise the override wins, then
// probing. If no probe answers, the base candidate is cached anyway.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.cached, r.err
	}
	if r.opts.Bridge != nil {
		u, err := r.opts.Bridge.BackendURL(ctx)
		if err == nil && u == "" {
			err = ErrNoBridgeURL
		}
		r.done = true
		if err != nil {
			r.err = fmt.Errorf("desktop bridge: %w", err)
			r.log.Error("bridge did not supply a backend url", slog.Any("err", err))
			return "", r.err
		}
		r.cached = strings.TrimRight(u, "/")
		r.log.Info("backend resolved", slog.String("url", r.cached), slog.String("via", "bridge"))
		return r.cached, nil
	}
	u := r.resolve(ctx)
	r.cached, r.done = strings.TrimRight(u, "/"), true
	r.log.Info("backend resolved", slog.String("url", r.cached))
	return r.cached, nil
}

func (r *Resolver) resolve(ctx context.Context) string {
	if r.opts.Override != "" {
		return r.opts.Override
	}

	base := "http://" + net.JoinHostPort(r.opts.ProbeHost, strconv.Itoa(r.opts.ProbePort))
	candidates := []string{base}
	if r.opts.Discovery {
		for _, ip := range r.discover(ctx, base) {
			c := "http://" + net.JoinHostPort(ip, strconv.Itoa(r.opts.ProbePort))
			if c != base {
				candidates = append(candidates, c)
			}
		}
	}
	for _, c := range candidates {
		if r.alive(ctx, c) {
			return c
		}
	}
	return base
}

// discover asks base for its addresses and keeps the routable ones.
func (r *Resolver) discover(ctx context.Context, base string) []string {
	var body struct {
		IP  string   `json:"ip"`
		IPs []string `json:"ips"`
	}
	if err := r.getJSON(ctx, base+"/ip", &body); err != nil {
		r.log.Debug("discovery failed", slog.Any("err", err))
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, s := range append([]string{body.IP}, body.IPs...) {
		if s == "" || seen[s] || skipAddress(s) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var zeroNet = netip.MustParsePrefix("0.0.0.0/8")

// skipAddress reports whether a discovered address is private, loopback
// or otherwise not worth probing.
func skipAddress(s string) bool {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return true
	}
	a = a.Unmap()
	return a.IsPrivate() || a.IsLoopback() || a.IsUnspecified() || a.IsLinkLocalUnicast() || zeroNet.Contains(a)
}

func (r *Resolver) alive(ctx context.Context, base string) bool {
	var v map[string]any
	return r.getJSON(ctx, base+"/status", &v) == nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, out any) error {
	r.probes.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{Method: http.MethodGet, Path: url, Status: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
