// Package config provides hierarchical configuration management.
// Priority: defaults < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gqflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Run       RunConfig       `yaml:"run"`
	Scratch   ScratchConfig   `yaml:"scratch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RunConfig controls the generated-quantities run.
type RunConfig struct {
	Jobs             int           `yaml:"jobs"`              // 0 = number of CPUs
	Timeout          time.Duration `yaml:"timeout"`           // per-draw wall clock
	FailureThreshold float64       `yaml:"failure_threshold"` // fraction in [0,1]
	Seed             int64         `yaml:"seed"`
}

// ScratchConfig controls working directories.
type ScratchConfig struct {
	Dir           string `yaml:"dir"`
	CheckpointDir string `yaml:"checkpoint_dir"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	gqflowDir := filepath.Join(homeDir, ".gqflow")

	return &Config{
		Version: 1,
		Run: RunConfig{
			Jobs:             0, // auto
			Timeout:          5 * time.Minute,
			FailureThreshold: 1.0,
			Seed:             1,
		},
		Scratch: ScratchConfig{
			Dir:           filepath.Join(os.TempDir(), "gqflow"),
			CheckpointDir: filepath.Join(gqflowDir, "checkpoints"),
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/gqflow/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gqflow", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".gqflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Run.Jobs != 0 {
		m.config.Run.Jobs = src.Run.Jobs
	}
	if src.Run.Timeout != 0 {
		m.config.Run.Timeout = src.Run.Timeout
	}
	if src.Run.FailureThreshold != 0 {
		m.config.Run.FailureThreshold = src.Run.FailureThreshold
	}
	if src.Run.Seed != 0 {
		m.config.Run.Seed = src.Run.Seed
	}

	if src.Scratch.Dir != "" {
		m.config.Scratch.Dir = src.Scratch.Dir
	}
	if src.Scratch.CheckpointDir != "" {
		m.config.Scratch.CheckpointDir = src.Scratch.CheckpointDir
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("GQFLOW_JOBS"); v != "" {
		if jobs, err := strconv.Atoi(v); err == nil {
			m.config.Run.Jobs = jobs
		}
	}

	if v := os.Getenv("GQFLOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Run.Timeout = d
		}
	}

	if v := os.Getenv("GQFLOW_SCRATCH_DIR"); v != "" {
		m.config.Scratch.Dir = v
	}

	if v := os.Getenv("GQFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".gqflow")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0o644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
