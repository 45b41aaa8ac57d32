// Package config provides configuration loading and management for Codeloom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Codeloom configuration
type Config struct {
	Repo         RepoConfig         `yaml:"repo"`
	Graph        GraphConfig        `yaml:"graph"`
	History      HistoryConfig      `yaml:"history"`
	Plans        PlansConfig        `yaml:"plans"`
	Agents       AgentsConfig       `yaml:"agents"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Watch        WatchConfig        `yaml:"watch"`
}

// RepoConfig configures the repository settings
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// GraphConfig configures the graph document location
type GraphConfig struct {
	// Path is the graph document file, relative to the repo root
	Path string `yaml:"path"`
}

// HistoryConfig configures the drift report archive
type HistoryConfig struct {
	// Dir is the append-only drift history directory, relative to the repo root
	Dir string `yaml:"dir"`
}

// PlansConfig configures plan document storage
type PlansConfig struct {
	// Dir is where plan documents are stored, relative to the repo root
	Dir string `yaml:"dir"`
}

// AgentsConfig configures the external agent transport
type AgentsConfig struct {
	// Provider is the registered agent provider name (default: "nats")
	Provider string `yaml:"provider"`
	// URL is the transport server URL (default: nats://127.0.0.1:4222)
	URL string `yaml:"url"`
	// SubjectPrefix namespaces the agent subjects
	SubjectPrefix string `yaml:"subject_prefix"`
	// RequestTimeout is the maximum time to wait for one agent invocation
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OrchestratorConfig configures plan execution
type OrchestratorConfig struct {
	// MaxConcurrent caps concurrent tasks per phase (0 = no cap)
	MaxConcurrent int `yaml:"max_concurrent"`
	// ProjectRules are handed to the builder with every task
	ProjectRules []string `yaml:"project_rules"`
}

// WatchConfig configures the graph file watcher
type WatchConfig struct {
	// Debounce is how long to wait for further writes before reloading
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		Graph: GraphConfig{
			Path: ".codeloom/graph.json",
		},
		History: HistoryConfig{
			Dir: ".codeloom/history",
		},
		Plans: PlansConfig{
			Dir: ".codeloom/plans",
		},
		Agents: AgentsConfig{
			Provider:       "nats",
			URL:            "nats://127.0.0.1:4222",
			SubjectPrefix:  "codeloom.agents",
			RequestTimeout: 5 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent: 4,
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Graph.Path == "" {
		return fmt.Errorf("graph.path is required")
	}
	if c.History.Dir == "" {
		return fmt.Errorf("history.dir is required")
	}
	if c.Agents.Provider == "" {
		return fmt.Errorf("agents.provider is required")
	}
	if c.Agents.RequestTimeout <= 0 {
		return fmt.Errorf("agents.request_timeout must be positive")
	}
	if c.Orchestrator.MaxConcurrent < 0 {
		return fmt.Errorf("orchestrator.max_concurrent must not be negative")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	return nil
}

// GraphPath returns the graph document path resolved against the repo root
func (c *Config) GraphPath() string {
	return c.resolve(c.Graph.Path)
}

// HistoryDir returns the drift history directory resolved against the repo root
func (c *Config) HistoryDir() string {
	return c.resolve(c.History.Dir)
}

// PlansDir returns the plans directory resolved against the repo root
func (c *Config) PlansDir() string {
	return c.resolve(c.Plans.Dir)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Repo.Path == "" {
		return path
	}
	return filepath.Join(c.Repo.Path, path)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}
	if other.Graph.Path != "" {
		c.Graph.Path = other.Graph.Path
	}
	if other.History.Dir != "" {
		c.History.Dir = other.History.Dir
	}
	if other.Plans.Dir != "" {
		c.Plans.Dir = other.Plans.Dir
	}

	if other.Agents.Provider != "" {
		c.Agents.Provider = other.Agents.Provider
	}
	if other.Agents.URL != "" {
		c.Agents.URL = other.Agents.URL
	}
	if other.Agents.SubjectPrefix != "" {
		c.Agents.SubjectPrefix = other.Agents.SubjectPrefix
	}
	if other.Agents.RequestTimeout != 0 {
		c.Agents.RequestTimeout = other.Agents.RequestTimeout
	}

	if other.Orchestrator.MaxConcurrent != 0 {
		c.Orchestrator.MaxConcurrent = other.Orchestrator.MaxConcurrent
	}
	if len(other.Orchestrator.ProjectRules) > 0 {
		c.Orchestrator.ProjectRules = other.Orchestrator.ProjectRules
	}

	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
