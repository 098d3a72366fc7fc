package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if val, ok := os.LookupEnv(submatch[1]); ok {
			return val
		}
		if len(submatch) >= 3 {
			return submatch[2]
		}
		return ""
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader reads the configuration directory once at process start.
type Loader struct {
	configDir string
	cfg       *Config
	models    *ModelsConfig
	providers *ProvidersConfig
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads moderator.yaml (required) plus models.yaml and providers.yaml
// (optional; without them no upstream model is routable).
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(l.configDir, "moderator.yaml"), cfg); err != nil {
		return fmt.Errorf("load moderator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate moderator config: %w", err)
	}

	models := &ModelsConfig{}
	if err := l.loadOptional("models.yaml", models); err != nil {
		return fmt.Errorf("load models config: %w", err)
	}

	providers := &ProvidersConfig{}
	if err := l.loadOptional("providers.yaml", providers); err != nil {
		return fmt.Errorf("load providers config: %w", err)
	}

	l.cfg = cfg
	l.models = models
	l.providers = providers

	l.logger.Info("configuration loaded", "dir", l.configDir,
		"providers", len(providers.Providers), "roles", len(models.Roles))
	return nil
}

func (l *Loader) loadOptional(name string, dest interface{}) error {
	path := filepath.Join(l.configDir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("optional config file missing", "file", path)
		return nil
	}
	return LoadFile(path, dest)
}

func (l *Loader) Config() *Config { return l.cfg }

func (l *Loader) Models() *ModelsConfig { return l.models }

func (l *Loader) Providers() *ProvidersConfig { return l.providers }
