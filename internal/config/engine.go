package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const engineEnvPrefix = "FLUME_ENGINE__"

type Engine struct {
	GRPCPort    int    `koanf:"grpc_port"`
	MetricsPort int    `koanf:"metrics_port"`
	Pipeline    string `koanf:"pipeline"`
	LogLevel    string `koanf:"log_level"`
	LogJSON     bool   `koanf:"log_json"`
}

// LoadEngine merges an optional YAML file with FLUME_ENGINE__* env vars.
// A missing file is not an error.
func LoadEngine(path string) (Engine, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Engine{}, err
		}
	}
	if err := k.Load(env.Provider(engineEnvPrefix, "__", envKey(engineEnvPrefix)), nil); err != nil {
		return Engine{}, err
	}

	var cfg Engine
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort == 0 {
		cfg.GRPCPort = 7070
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9100
	}
	if cfg.Pipeline == "" {
		cfg.Pipeline = "pipeline.yml"
	}
	return cfg, nil
}

// envKey maps PREFIX__A__B to a.b style keys.
func envKey(prefix string) func(string) string {
	return func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, prefix))
	}
}
