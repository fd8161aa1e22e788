package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// INSIGHTS_STORAGE_POSTGRES_DSN -> storage.postgres_dsn.
const EnvPrefix = "INSIGHTS_"

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies environment overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			content = data
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
	}
	return Parse(content)
}

// Parse builds a Config from raw YAML bytes plus the environment.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("Parse: loading yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("Parse: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("Parse: unmarshal: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Parse: invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps INSIGHTS_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
