// Package config loads hollowd's process configuration from a YAML file,
// the way the teacher's cmd/warren apply.go loads resource manifests:
// read bytes, yaml.Unmarshal into a plain struct, surface load errors with
// the file path attached.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is hollowd's top-level process configuration.
type Config struct {
	DataDir string       `yaml:"dataDir"`
	Listen  ListenConfig `yaml:"listen"`
	Log     LogConfig    `yaml:"log"`
	Raft    RaftConfig   `yaml:"raft"`
}

// ListenConfig configures the gRPC facade's bind address.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RaftConfig holds settings for the optional replication layer
// (pkg/replicate). hollowd serve does not read it: serve always runs a
// single-node, non-replicated engine whatever these fields say.
type RaftConfig struct {
	Enabled   bool     `yaml:"enabled"`
	NodeID    string   `yaml:"nodeId"`
	BindAddr  string   `yaml:"bindAddr"`
	Bootstrap bool     `yaml:"bootstrap"`
	Peers     []string `yaml:"peers"`
}

// Default returns a config suitable for a standalone, single-node
// instance with no file present.
func Default() Config {
	return Config{
		DataDir: "./data",
		Listen:  ListenConfig{Address: "127.0.0.1:7070"},
		Log:     LogConfig{Level: "info", JSON: true},
	}
}

// Load reads and parses a YAML config file, layering it over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
