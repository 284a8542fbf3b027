// Package config loads the files that describe a flume deployment: the
// pipeline layout (plain YAML) and the engine settings (YAML plus env).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flume/internal/spec"
)

// SupportedSchema is the only pipeline schema_version understood; an
// omitted version is taken to mean it.
const SupportedSchema = "v1"

// LoadPipelineSpec reads the pipeline at path. The second result is the
// source config file, made relative to the pipeline's directory, or "" when
// the source has none. Transformer names must be present and unique.
func LoadPipelineSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}

	seen := make(map[string]bool, len(cfg.Transformers))
	for i, t := range cfg.Transformers {
		if t.Name == "" {
			return cfg, "", fmt.Errorf("transformer #%d: name is required", i)
		}
		if seen[t.Name] {
			return cfg, "", fmt.Errorf("transformer %q declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	confPath := cfg.Source.Config
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	return cfg, confPath, nil
}
