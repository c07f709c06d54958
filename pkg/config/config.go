// ///////////////////////////////////////////////////////////////////////////
//
// # rowdiff
//
// Copyright (C) 2026, the rowdiff authors
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package config

import (
	_ "embed"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfigYAML []byte

// Config is the whole application's configuration: connection
// settings for both sides, the comparator's default options, the HTTP
// API, and any scheduled jobs.
type Config struct {
	Left  ConnConfig `yaml:"left"`
	Right ConnConfig `yaml:"right"`

	Diff   DiffConfig   `yaml:"diff"`
	Server ServerConfig `yaml:"server"`

	ScheduleJobs   []JobDef   `yaml:"schedule_jobs"`
	ScheduleConfig []SchedDef `yaml:"schedule_config"`

	TaskStorePath string `yaml:"task_store_path"`
	Verbosity     int    `yaml:"verbosity"`
}

// ConnConfig describes one side's connection and table.
type ConnConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "mysql"
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Keys   []string `yaml:"keys"`
	Cols   []string `yaml:"cols"`
	KeyLen int      `yaml:"keylen"`
}

// DiffConfig holds the default comparison options, mirroring the
// comparison options table; zero values defer to the engine's own
// defaults.
type DiffConfig struct {
	Factor     int    `yaml:"factor"`
	MaxLevels  int    `yaml:"max_levels"`
	MaxReport  int    `yaml:"max_report"`
	Sep        string `yaml:"sep"`
	Prefix     string `yaml:"prefix"`
	Null       string `yaml:"null"`
	Concat     string `yaml:"concat"`
	Checksum   string `yaml:"checksum"`
	Aggregate  string `yaml:"aggregate"`
	Temporary  *bool  `yaml:"temporary"`
	Cleanup    *bool  `yaml:"cleanup"`
	Parallel   bool   `yaml:"parallel"`
	Statistics bool   `yaml:"statistics"`
}

type ServerConfig struct {
	ListenAddress string         `yaml:"listen_address"`
	ListenPort    int            `yaml:"listen_port"`
	CertAuth      CertAuthConfig `yaml:"cert_auth"`
}

type JobDef struct {
	Name  string     `yaml:"name"`
	Left  ConnConfig `yaml:"left"`
	Right ConnConfig `yaml:"right"`
	Diff  DiffConfig `yaml:"diff"`
}

type SchedDef struct {
	JobName         string `yaml:"job_name"`
	CrontabSchedule string `yaml:"crontab_schedule,omitempty"`
	RunFrequency    string `yaml:"run_frequency,omitempty"`
	Enabled         bool   `yaml:"enabled"`
}

type CertAuthConfig struct {
	UseCertAuth   bool     `yaml:"use_cert_auth"`
	ServerCert    string   `yaml:"server_cert_file"`
	ServerKey     string   `yaml:"server_key_file"`
	CACertFile    string   `yaml:"ca_cert_file"`
	ClientCRLFile string   `yaml:"client_crl_file,omitempty"`
	AllowedCNs    []string `yaml:"allowed_cns,omitempty"`
}

// Cfg holds the loaded config for the whole app.
var Cfg *Config

// Default returns the embedded baseline configuration.
func Default() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(defaultConfigYAML, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultYAML returns the embedded baseline configuration's raw YAML,
// for "config init" to write out as a starting point.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultConfigYAML))
	copy(out, defaultConfigYAML)
	return out
}

// Load reads path and overlays it onto the embedded defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Init loads the config and assigns it to the package variable.
func Init(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Cfg = c
	return nil
}

// BoolOr returns *b if b is non-nil, else def. Used for DiffConfig's
// tri-state overrides (temporary, cleanup), whose documented default
// depends on the other's value.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
