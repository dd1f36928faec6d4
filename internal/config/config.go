// Package config loads the optional ipcrecord configuration file.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Defaults used when neither the file nor a flag sets a value.
const (
	DefaultRecordingsDir  = "/data/local/recordings"
	DefaultServicesDir    = "/run/ipcrecord/services"
	DefaultAnalyzersDir   = "/etc/ipcrecord/analyzers"
	DefaultPollInterval   = time.Second
	DefaultInterruptLimit = 3
	DefaultLogLevel       = "info"
)

// Config holds settings shared by every command.
type Config struct {
	RecordingsDir  string        `yaml:"recordings_dir" json:"recordings_dir"`
	ServicesDir    string        `yaml:"services_dir" json:"services_dir"`
	AnalyzersDir   string        `yaml:"analyzers_dir" json:"analyzers_dir"`
	ProtoPaths     []string      `yaml:"proto_paths" json:"proto_paths,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	InterruptLimit int           `yaml:"interrupt_limit" json:"interrupt_limit"`
	LogLevel       string        `yaml:"log_level" json:"log_level"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates the YAML file at path. An empty path returns
// Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the config schema and decodes it. filename
// is only used in error positions.
func Parse(filename string, data []byte) (*Config, error) {
	if err := validate(filename, data); err != nil {
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// validate checks data against #Config so that errors point into the file.
func validate(filename string, data []byte) error {
	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("config/schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.Unify(ctx.BuildFile(f))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RecordingsDir == "" {
		c.RecordingsDir = DefaultRecordingsDir
	}
	if c.ServicesDir == "" {
		c.ServicesDir = DefaultServicesDir
	}
	if c.AnalyzersDir == "" {
		c.AnalyzersDir = DefaultAnalyzersDir
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.InterruptLimit <= 0 {
		c.InterruptLimit = DefaultInterruptLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
