package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "REDCAPGRADE_"
	// EnvConfigPath names a YAML config file when --config is not given.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, an optional YAML file and env
// vars. Order of precedence (low -> high):
//  1. base (usually New())
//  2. file (YAML) at path, or at $REDCAPGRADE_CONFIG when path is empty
//  3. env (prefix REDCAPGRADE_, "__" separates sections)
//
// CLI flags are applied by the caller on top of the result.
//
// Example: REDCAPGRADE_DATABASE__PASSWORD=secret sets database.password.
func Load(path string, base *Config) (*Config, error) {
	if base == nil {
		base = New()
	}
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvConfigPath {
			return ""
		}
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	cfg.REDCap.StudentTokens = append([]string(nil), base.REDCap.StudentTokens...)
	// Decoding into a non-empty slice overwrites by index and keeps the tail,
	// so a configured list must replace the base list outright.
	if k.Exists("redcap.student_tokens") {
		cfg.REDCap.StudentTokens = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	return &cfg, nil
}
