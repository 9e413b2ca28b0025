// Package config loads and validates the project-local configuration file
// (§6): a YAML document named .pygmalion.conf at the project root.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file's name, always resolved relative to
// the project root (the directory containing .pygmalion.sqlite).
const FileName = ".pygmalion.conf"

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "notice": true, "warning": true,
	"error": true, "critical": true, "alert": true, "emergency": true,
}

// Config is the recognized option set (§6). Field tags match the YAML keys
// literally since the spec's keys are already lowerCamelCase.
type Config struct {
	Make                string `mapstructure:"make" yaml:"make"`
	IndexingThreads     int    `mapstructure:"indexingThreads" yaml:"indexingThreads"`
	CompilationDatabase bool   `mapstructure:"compilationDatabase" yaml:"compilationDatabase"`
	Tags                bool   `mapstructure:"tags" yaml:"tags"`
	LogLevel            string `mapstructure:"logLevel" yaml:"logLevel"`
}

// Defaults returns the option defaults named in §6.
func Defaults() Config {
	return Config{
		Make:                "make",
		IndexingThreads:     4,
		CompilationDatabase: false,
		Tags:                false,
		LogLevel:            "info",
	}
}

// Load reads FileName from projectRoot through viper, layering it over
// Defaults; a missing config file is not an error. The result is always
// validated before being returned.
func Load(projectRoot string) (Config, error) {
	path := filepath.Join(projectRoot, FileName)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	def := Defaults()
	v.SetDefault("make", def.Make)
	v.SetDefault("indexingThreads", def.IndexingThreads)
	v.SetDefault("compilationDatabase", def.CompilationDatabase)
	v.SetDefault("tags", def.Tags)
	v.SetDefault("logLevel", def.LogLevel)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants §6 states for each option.
func (c Config) Validate() error {
	if c.IndexingThreads < 0 {
		return fmt.Errorf("indexingThreads must be >= 0, got %d", c.IndexingThreads)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("logLevel %q is not one of debug info notice warning error critical alert emergency", c.LogLevel)
	}
	return nil
}

// Save writes cfg to FileName under projectRoot as a fresh YAML document.
// Unlike a key-preserving editor, this always rewrites the whole file; the
// CLI surface (§6) has no "config set" subcommand that needs to touch one
// key while leaving the rest of a hand-edited file untouched.
func Save(projectRoot string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(projectRoot, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ExpandMake fills the make command template's placeholders (§6):
// $(projectroot) becomes projectRoot; $(args) becomes the space-joined args
// if the template names it, otherwise args are appended.
func (c Config) ExpandMake(projectRoot string, args []string) string {
	cmd := strings.ReplaceAll(c.Make, "$(projectroot)", projectRoot)
	joined := strings.Join(args, " ")

	if strings.Contains(cmd, "$(args)") {
		return strings.ReplaceAll(cmd, "$(args)", joined)
	}
	if joined == "" {
		return cmd
	}
	return cmd + " " + joined
}
