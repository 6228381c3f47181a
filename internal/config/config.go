/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted as YAML in the user
// scope. Environment variables are read-only overrides applied at load time.
// The database URL may carry credentials and therefore lives in the OS
// keyring, never in the YAML file.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Shell         ShellConfig   `yaml:"shell"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	Theme     string `yaml:"theme"`      // system | light | dark | high-contrast
	StartPage string `yaml:"start_page"` // dashboard | admin | admin-config
}

// BackendConfig controls how the client finds the backend when no desktop
// bridge is present.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url"` // explicit override, wins over probing
	TimeoutMs int    `yaml:"timeout_ms"`
	ProbeHost string `yaml:"probe_host"`
	ProbePort int    `yaml:"probe_port"`
	Discovery bool   `yaml:"discovery"` // also try addresses reported by /ip
}

// ShellConfig controls the backend process spawned by the desktop shell.
type ShellConfig struct {
	DataDir         string `yaml:"data_dir"`
	BackendCommand  string `yaml:"backend_command"` // empty: this executable with "server"
	HealthTimeoutMs int    `yaml:"health_timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Theme values accepted by General.Theme.
const (
	ThemeSystem       = "system"
	ThemeLight        = "light"
	ThemeDark         = "dark"
	ThemeHighContrast = "high-contrast"
)

// Themes lists the selectable themes in menu order.
var Themes = []string{ThemeSystem, ThemeLight, ThemeDark, ThemeHighContrast}

// ValidTheme reports whether s is one of Themes.
func ValidTheme(s string) bool {
	for _, t := range Themes {
		if s == t {
			return true
		}
	}
	return false
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: ThemeSystem, StartPage: "dashboard"},
		Backend:       BackendConfig{TimeoutMs: 15000, ProbeHost: "localhost", ProbePort: 8001, Discovery: true},
		Shell:         ShellConfig{HealthTimeoutMs: 15000},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "TD_CONFIG_FILE"
	EnvBackendURL       = "TD_BACKEND_URL"
	EnvBackendTimeoutMs = "TD_BACKEND_TIMEOUT_MS"
	EnvProbeHost        = "TD_PROBE_HOST"
	EnvProbePort        = "TD_PROBE_PORT"
	EnvDiscovery        = "TD_DISCOVERY"
	EnvDataDir          = "TD_DATA_DIR"
	EnvTheme            = "TD_THEME"
	EnvLogLevel         = "TD_LOG_LEVEL"
	EnvLogFormat        = "TD_LOG_FORMAT"
	EnvLogSource        = "TD_LOG_SOURCE"
	EnvLogFile          = "TD_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "TrainDispatcher"
	keyringDBURL   = "database_url"
)

// ConfigPath returns the per-user config file path. TD_CONFIG_FILE wins.
func ConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "TrainDispatcher")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TrainDispatcher")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "traindispatcher")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "traindispatcher")
		}
	}
	if base == "" || base == "TrainDispatcher" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DefaultDataDir is where the backend keeps dispatcher.db and its logs
// unless shell.data_dir says otherwise.
func DefaultDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("LocalAppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(base, "TrainDispatcher", "data"), nil
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TrainDispatcher", "data"), nil
	default:
		if x := os.Getenv("XDG_DATA_HOME"); x != "" {
			return filepath.Join(x, "traindispatcher"), nil
		}
		home := os.Getenv("HOME")
		if home == "" {
			return "", errors.New("cannot resolve data directory")
		}
		return filepath.Join(home, ".local", "share", "traindispatcher"), nil
	}
}

// DataDir returns the configured data dir or the OS default.
func (c AppConfig) DataDir() (string, error) {
	if d := strings.TrimSpace(c.Shell.DataDir); d != "" {
		return d, nil
	}
	return DefaultDataDir()
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. The database URL is read from the keyring and
// returned separately; an empty string means "use the bundled SQLite file".
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	dbURL, _ := tokenStore.Get(keyringService, keyringDBURL)
	return cfg, dbURL, nil
}

// Save writes the YAML file and stores a non-empty database URL in the keyring.
func Save(cfg AppConfig, dbURL string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if dbURL != "" {
		if err := tokenStore.Set(keyringService, keyringDBURL, dbURL); err != nil {
			return fmt.Errorf("store database url: %w", err)
		}
	}
	return nil
}

// ForgetDatabaseURL removes the stored database URL so the shell falls back to SQLite.
func ForgetDatabaseURL() error {
	return tokenStore.Delete(keyringService, keyringDBURL)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if t := strings.ToLower(strings.TrimSpace(src.General.Theme)); ValidTheme(t) {
		dst.General.Theme = t
	}
	if p := strings.TrimSpace(src.General.StartPage); p != "" {
		dst.General.StartPage = p
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = strings.TrimSpace(src.Backend.BaseURL)
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Backend.ProbeHost != "" {
		dst.Backend.ProbeHost = src.Backend.ProbeHost
	}
	if src.Backend.ProbePort != 0 {
		dst.Backend.ProbePort = src.Backend.ProbePort
	}
	// booleans come straight from the file so a saved "false" sticks
	dst.Backend.Discovery = src.Backend.Discovery
	if src.Shell.DataDir != "" {
		dst.Shell.DataDir = strings.TrimSpace(src.Shell.DataDir)
	}
	if src.Shell.BackendCommand != "" {
		dst.Shell.BackendCommand = strings.TrimSpace(src.Shell.BackendCommand)
	}
	if src.Shell.HealthTimeoutMs != 0 {
		dst.Shell.HealthTimeoutMs = src.Shell.HealthTimeoutMs
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := env(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if n, ok := envInt(EnvBackendTimeoutMs); ok {
		cfg.Backend.TimeoutMs = n
	}
	if v := env(EnvProbeHost); v != "" {
		cfg.Backend.ProbeHost = v
	}
	if n, ok := envInt(EnvProbePort); ok {
		cfg.Backend.ProbePort = n
	}
	if v := env(EnvDiscovery); v != "" {
		cfg.Backend.Discovery = truthy(v)
	}
	if v := env(EnvDataDir); v != "" {
		cfg.Shell.DataDir = v
	}
	if v := strings.ToLower(env(EnvTheme)); ValidTheme(v) {
		cfg.General.Theme = v
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := env(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

var envKeys = map[string]string{
	"backend.base_url":   EnvBackendURL,
	"backend.timeout_ms": EnvBackendTimeoutMs,
	"backend.probe_host": EnvProbeHost,
	"backend.probe_port": EnvProbePort,
	"backend.discovery":  EnvDiscovery,
	"shell.data_dir":     EnvDataDir,
	"general.theme":      EnvTheme,
	"logging.level":      EnvLogLevel,
	"logging.format":     EnvLogFormat,
	"logging.source":     EnvLogSource,
	"logging.file":       EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by the
// environment, so the configuration page can mark it read-only.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// EffectiveTimeout returns the HTTP timeout for backend calls.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	ms := b.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Backend.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// HealthTimeout returns how long the shell waits for a spawned backend.
func (s ShellConfig) HealthTimeout() time.Duration {
	ms := s.HealthTimeoutMs
	if ms <= 0 {
		ms = Defaults().Shell.HealthTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}
