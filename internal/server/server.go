/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package server is the HTTP backend: CRUD for the railroad records plus the
// admin endpoints for database maintenance. It is started by the desktop
// shell as a child process or run standalone with "traindispatcher server".
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	applog "traindispatcher/internal/log"
	"traindispatcher/internal/store"
	"traindispatcher/internal/version"
)

// Environment read by the backend. The desktop shell sets the first four.
const (
	EnvPort        = "BACKEND_PORT"
	EnvHost        = "BACKEND_HOST"
	EnvDataDir     = "USER_DATA_DIR"
	EnvDatabaseURL = "DATABASE_URL"
	EnvCORSOrigins = "TD_CORS_ORIGINS"

	DefaultPort = 8001
	LogFileName = "backend.log"
)

// Config is the backend's runtime configuration.
type Config struct {
	Host        string
	Port        int
	DataDir     string
	DatabaseURL string
	CORSOrigins []string
}

// Addr is host:port for net.Listen.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// LogFile is where the backend's JSON log goes and what /status tails.
func (c Config) LogFile() string { return filepath.Join(c.DataDir, LogFileName) }

// ConfigFromEnv reads the environment after loading {USER_DATA_DIR}/.env.
// Values already present in the environment win over the file.
func ConfigFromEnv() (Config, error) {
	dir := os.Getenv(EnvDataDir)
	if dir == "" {
		dir = "./data"
	}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	// the .env file may itself move the data dir
	if v := os.Getenv(EnvDataDir); v != "" {
		dir = v
	}
	cfg := Config{
		Host:        "0.0.0.0",
		Port:        DefaultPort,
		DataDir:     dir,
		DatabaseURL: os.Getenv(EnvDatabaseURL),
		CORSOrigins: []string{"*"},
	}
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return Config{}, fmt.Errorf("%s=%q is not a port", EnvPort, v)
		}
		cfg.Port = p
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	return cfg, nil
}

// Server owns the router, the store and the orphan checker.
type Server struct {
	cfg     Config
	store   *store.Store
	orphans *OrphanChecker
	engine  *gin.Engine
	log     *slog.Logger
	started time.Time
}

// New builds the router over an open store.
func New(ctx context.Context, cfg Config, st *store.Store) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		orphans: NewOrphanChecker(ctx, st),
		log:     applog.WithComponent("server"),
		started: time.Now(),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Orphans returns the background checker.
func (s *Server) Orphans() *OrphanChecker { return s.orphans }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(Recovery(s.log), RequestID(), Logger(s.log), CORS(s.cfg.CORSOrigins))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Train Dispatcher Backend is running!"})
	})
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/readyz", s.ready)
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.String()})
	})
	r.GET("/versions.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", version.Raw())
	})

	s.registerResources(r)
	s.layoutDistricts(r)
	s.registerAdmin(r)
	return r
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run opens the store, serves until ctx is cancelled and then shuts down
// gracefully. It installs the backend log file under the data dir.
func Run(ctx context.Context, cfg Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	opts := applog.FromEnv()
	if opts.File == "" {
		opts.File = cfg.LogFile()
	}
	applog.Init(opts)
	l := applog.WithComponent("server")

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	s := New(ctx, cfg, st)
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	go s.orphans.Run(workCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l.Info("listening", slog.String("addr", srv.Addr), slog.String("driver", st.Driver()), slog.String("db", st.Location()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	l.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
