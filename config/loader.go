package config

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ProjectConfigFile is the project-level config file, discovered by
	// walking up from the working directory.
	ProjectConfigFile = "codeloom.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/codeloom"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix namespaces the environment overrides.
	EnvPrefix = "CODELOOM_"
)

// Loader resolves the effective configuration from layered sources:
// defaults, then the user config file, then the project config file, then
// CODELOOM_* environment variables. Later layers win. The repo path is
// auto-detected from git when no layer sets it.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves the effective configuration.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	layers := []struct {
		name string
		path string
	}{
		{"user", l.userConfigPath()},
		{"project", l.findProjectConfig()},
	}
	for _, layer := range layers {
		if layer.path == "" {
			continue
		}
		overlay, err := LoadFromFile(layer.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			l.logger.Warn("skipping unreadable config layer",
				"layer", layer.name, "path", layer.path, "error", err)
			continue
		}
		config.Merge(overlay)
		l.logger.Debug("applied config layer", "layer", layer.name, "path", layer.path)
	}

	config.Merge(l.envOverrides())

	if config.Repo.Path == "" {
		config.Repo.Path = l.detectRepoRoot()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// envOverrides builds a sparse config from CODELOOM_* environment variables.
// Unlike the file layers it starts from a zero Config, so only variables
// that are actually set take effect on merge.
func (l *Loader) envOverrides() *Config {
	overlay := &Config{}

	if v := os.Getenv(EnvPrefix + "REPO"); v != "" {
		overlay.Repo.Path = v
	}
	if v := os.Getenv(EnvPrefix + "GRAPH"); v != "" {
		overlay.Graph.Path = v
	}
	if v := os.Getenv(EnvPrefix + "AGENTS_URL"); v != "" {
		overlay.Agents.URL = v
	}
	if v := os.Getenv(EnvPrefix + "SUBJECT_PREFIX"); v != "" {
		overlay.Agents.SubjectPrefix = v
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			overlay.Agents.RequestTimeout = d
		} else {
			l.logger.Warn("ignoring invalid duration", "var", EnvPrefix+"REQUEST_TIMEOUT", "value", v)
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			overlay.Orchestrator.MaxConcurrent = n
		} else {
			l.logger.Warn("ignoring invalid integer", "var", EnvPrefix+"MAX_CONCURRENT", "value", v)
		}
	}

	return overlay
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	path := l.userConfigPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	l.logger.Info("Created default user config", slog.String("path", path))
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks up from the working directory until it finds
// codeloom.yaml or hits the filesystem root.
func (l *Loader) findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// detectRepoRoot asks git for the repository root, falling back to the
// working directory outside a repo.
func (l *Loader) detectRepoRoot() string {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err == nil {
		if root := strings.TrimSpace(string(out)); root != "" {
			l.logger.Debug("detected git root", "path", root)
			return root
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}
