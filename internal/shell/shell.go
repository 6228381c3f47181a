/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package shell runs the backend as a child process for the desktop
// renderers and hands its URL to the API client.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"traindispatcher/internal/config"
	applog "traindispatcher/internal/log"
	"traindispatcher/internal/server"
)

const (
	defaultHealthTimeout = 15 * time.Second
	stopGrace            = 5 * time.Second
	pollInterval         = 100 * time.Millisecond
	// DBFileName is the SQLite file created in the data dir.
	DBFileName = "dispatcher.db"
)

var (
	// ErrNotHealthy is returned when /healthz does not answer in time.
	ErrNotHealthy = errors.New("backend did not become healthy")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("backend launcher stopped")
)

// ExitError describes an unexpected backend exit.
type ExitError struct {
	Code   int
	Signal string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("backend exited: code=%d signal=%s", e.Code, e.Signal)
}

// Options configure a Launcher.
type Options struct {
	// Command is the backend program and its arguments. Empty means this
	// executable with "server".
	Command []string
	DataDir string
	// DatabaseURL overrides $DATABASE_URL and the SQLite default.
	DatabaseURL   string
	HealthTimeout time.Duration
	// Env is appended to the inherited environment.
	Env            []string
	Stdout, Stderr io.Writer
	// OnExit runs once when a healthy backend exits without Stop.
	OnExit func(err error)
}

// FromConfig builds launcher options from the app config.
func FromConfig(cfg config.AppConfig, dbURL string) (Options, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Command:       strings.Fields(cfg.Shell.BackendCommand),
		DataDir:       dir,
		DatabaseURL:   dbURL,
		HealthTimeout: cfg.Shell.HealthTimeout(),
	}, nil
}

// Launcher owns the backend child process.
type Launcher struct {
	opts Options
	log  *slog.Logger

	startMu  sync.Mutex
	mu       sync.Mutex
	cmd      *exec.Cmd
	url      string
	done     chan struct{}
	ready    bool
	stopping bool
}

// New returns an idle launcher.
func New(opts Options) *Launcher {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = defaultHealthTimeout
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Launcher{opts: opts, log: applog.WithComponent("shell")}
}

// findOpenPort asks the OS for a free loopback port.
func findOpenPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// DefaultDatabaseURL is the SQLite database inside dataDir.
func DefaultDatabaseURL(dataDir string) string {
	return "sqlite://" + filepath.ToSlash(filepath.Join(dataDir, DBFileName))
}

func (l *Launcher) databaseURL() string {
	if l.opts.DatabaseURL != "" {
		return l.opts.DatabaseURL
	}
	if v := os.Getenv(server.EnvDatabaseURL); v != "" {
		return v
	}
	return DefaultDatabaseURL(l.opts.DataDir)
}

func (l *Launcher) command() ([]string, error) {
	if len(l.opts.Command) > 0 {
		return l.opts.Command, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return []string{exe, "server"}, nil
}

// Start spawns the backend on a free port and waits for /healthz. Calling
// it again returns the running backend's URL.
func (l *Launcher) Start(ctx context.Context) (string, error) {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return "", ErrStopped
	}
	if l.cmd != nil {
		url := l.url
		l.mu.Unlock()
		return url, nil
	}
	l.mu.Unlock()

	if l.opts.DataDir != "" {
		if err := os.MkdirAll(l.opts.DataDir, 0o755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
	}
	port, err := findOpenPort()
	if err != nil {
		return "", fmt.Errorf("find open port: %w", err)
	}
	argv, err := l.command()
	if err != nil {
		return "", err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), l.opts.Env...)
	cmd.Env = append(cmd.Env,
		server.EnvPort+"="+strconv.Itoa(port),
		server.EnvHost+"=127.0.0.1",
		server.EnvDataDir+"="+l.opts.DataDir,
		server.EnvDatabaseURL+"="+l.databaseURL(),
	)
	cmd.Stdout, cmd.Stderr = l.opts.Stdout, l.opts.Stderr
	setProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start backend: %w", err)
	}
	url := "http://127.0.0.1:" + strconv.Itoa(port)
	done := make(chan struct{})

	l.mu.Lock()
	l.cmd, l.url, l.done = cmd, url, done
	l.mu.Unlock()
	l.log.Info("backend started", slog.Int("pid", cmd.Process.Pid), slog.String("url", url))

	go l.monitor(cmd, done)

	if err := waitHealthy(ctx, url, l.opts.HealthTimeout, done); err != nil {
		_ = l.Stop()
		return "", err
	}
	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()
	l.log.Info("backend healthy", slog.String("url", url))
	return url, nil
}

// monitor waits for the child. An exit that Stop did not ask for is logged
// and reported through OnExit; there is no restart.
func (l *Launcher) monitor(cmd *exec.Cmd, done chan struct{}) {
	_ = cmd.Wait()
	st := cmd.ProcessState
	exitErr := &ExitError{Code: st.ExitCode(), Signal: exitSignal(st)}
	close(done)

	l.mu.Lock()
	stopping, ready := l.stopping, l.ready
	l.mu.Unlock()
	if stopping {
		l.log.Info("backend stopped", slog.Int("code", exitErr.Code))
		return
	}
	l.log.Error("backend exited", slog.Int("code", exitErr.Code), slog.String("signal", exitErr.Signal))
	if ready && l.opts.OnExit != nil {
		l.opts.OnExit(exitErr)
	}
}

func waitHealthy(ctx context.Context, base string, timeout time.Duration, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cli := &http.Client{Timeout: time.Second}
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
		if err != nil {
			return err
		}
		if resp, err := cli.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-exited:
			return fmt.Errorf("%w: process exited", ErrNotHealthy)
		case <-ctx.Done():
			return fmt.Errorf("%w after %s: %w", ErrNotHealthy, timeout, ctx.Err())
		case <-tick.C:
		}
	}
}

// URL returns the running backend's base URL or "".
func (l *Launcher) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Done is closed when the child has exited. It is nil before Start.
func (l *Launcher) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Stop terminates the backend's process group and waits for it, escalating
// to a kill after a grace period.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	l.stopping = true
	cmd, done := l.cmd, l.done
	l.mu.Unlock()
	if cmd == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}
	if err := terminate(cmd.Process); err != nil {
		l.log.Warn("terminate failed", slog.Any("err", err))
	}
	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
	}
	if err := kill(cmd.Process); err != nil {
		return fmt.Errorf("kill backend: %w", err)
	}
	<-done
	return nil
}

// Bridge hands the launcher's URL to api.Resolver. The first call starts
// the backend; its result, error included, is kept for the process lifetime.
type Bridge struct {
	launcher *Launcher

	once sync.Once
	url  string
	err  error
}

// NewBridge wraps l.
func NewBridge(l *Launcher) *Bridge { return &Bridge{launcher: l} }

func (b *Bridge) BackendURL(ctx context.Context) (string, error) {
	b.once.Do(func() {
		b.url, b.err = b.launcher.Start(ctx)
	})
	return b.url, b.err
}
