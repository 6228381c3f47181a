package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/server"
)

const helperEnv = "TD_SHELL_HELPER"

// TestHelperProcess is the fake backend. It only runs when re-executed by
// helperOptions.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process")
	}
	addr := net.JoinHostPort(os.Getenv(server.EnvHost), os.Getenv(server.EnvPort))
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if mode == "never-healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/env", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			server.EnvPort:        os.Getenv(server.EnvPort),
			server.EnvHost:        os.Getenv(server.EnvHost),
			server.EnvDataDir:     os.Getenv(server.EnvDataDir),
			server.EnvDatabaseURL: os.Getenv(server.EnvDatabaseURL),
		})
	})
	if mode == "exit-early" {
		os.Exit(4)
	}
	if mode == "crash" {
		go func() {
			time.Sleep(1500 * time.Millisecond)
			os.Exit(3)
		}()
	}
	_ = http.ListenAndServe(addr, mux)
	os.Exit(0)
}

func helperOptions(t *testing.T, mode string) Options {
	t.Helper()
	return Options{
		Command:       []string{os.Args[0], "-test.run=^TestHelperProcess$"},
		DataDir:       t.TempDir(),
		HealthTimeout: 10 * time.Second,
		Env:           []string{helperEnv + "=" + mode},
		Stdout:        io.Discard,
		Stderr:        io.Discard,
	}
}

func TestFindOpenPort(t *testing.T) {
	port, err := findOpenPort()
	require.NoError(t, err)
	assert.Positive(t, port)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	_ = ln.Close()
}

func TestDefaultDatabaseURL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	assert.Equal(t, "sqlite://"+filepath.ToSlash(filepath.Join(dir, DBFileName)), DefaultDatabaseURL(dir))
}

func TestStartPassesEnvironment(t *testing.T) {
	t.Setenv(server.EnvDatabaseURL, "")
	opts := helperOptions(t, "serve")
	l := New(opts)
	t.Cleanup(func() { _ = l.Stop() })

	url, err := l.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, url, l.URL())

	again, err := l.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, url, again)

	resp, err := http.Get(url + "/env")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "127.0.0.1", env[server.EnvHost])
	assert.Equal(t, url, "http://127.0.0.1:"+env[server.EnvPort])
	assert.Equal(t, opts.DataDir, env[server.EnvDataDir])
	assert.Equal(t, DefaultDatabaseURL(opts.DataDir), env[server.EnvDatabaseURL])
}

func TestDatabaseURLOverride(t *testing.T) {
	l := New(Options{DataDir: "/data", DatabaseURL: "postgres://db/td"})
	assert.Equal(t, "postgres://db/td", l.databaseURL())

	t.Setenv(server.EnvDatabaseURL, "sqlite:///elsewhere.db")
	l = New(Options{DataDir: "/data"})
	assert.Equal(t, "sqlite:///elsewhere.db", l.databaseURL())
}

func TestStopDoesNotReportExit(t *testing.T) {
	var exits atomic.Int32
	opts := helperOptions(t, "serve")
	opts.OnExit = func(error) { exits.Add(1) }
	l := New(opts)

	_, err := l.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Stop())

	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("backend still running after Stop")
	}
	assert.Zero(t, exits.Load())

	_, err = l.Start(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestUnexpectedExitCallsOnExit(t *testing.T) {
	got := make(chan error, 1)
	opts := helperOptions(t, "crash")
	opts.OnExit = func(err error) { got <- err }
	l := New(opts)
	t.Cleanup(func() { _ = l.Stop() })

	_, err := l.Start(context.Background())
	require.NoError(t, err)

	select {
	case err := <-got:
		var ee *ExitError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, 3, ee.Code)
		assert.Contains(t, err.Error(), "backend exited")
	case <-time.After(10 * time.Second):
		t.Fatal("OnExit not called")
	}
}

func TestStartFailsWhenBackendExitsEarly(t *testing.T) {
	var exits atomic.Int32
	opts := helperOptions(t, "exit-early")
	opts.OnExit = func(error) { exits.Add(1) }
	l := New(opts)

	_, err := l.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotHealthy)
	assert.Zero(t, exits.Load())
}

func TestStartTimesOut(t *testing.T) {
	opts := helperOptions(t, "never-healthy")
	opts.HealthTimeout = 500 * time.Millisecond
	l := New(opts)

	_, err := l.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotHealthy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeCachesResult(t *testing.T) {
	l := New(Options{Command: []string{filepath.Join(t.TempDir(), "missing-backend")}, Stdout: io.Discard, Stderr: io.Discard})
	b := NewBridge(l)

	_, err1 := b.BackendURL(context.Background())
	require.Error(t, err1)
	_, err2 := b.BackendURL(context.Background())
	assert.Same(t, err1, err2)
}
