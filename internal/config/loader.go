package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (applied by the caller after loading)
//  2. Environment variables (RUN_TARGET_DIR, SEARCH_KEYWORD_MATCH, ...)
//  3. YAML config file
//  4. Hardcoded defaults
//
// The configPath parameter names the YAML file to load; if empty, no file
// is read. The GitHub token is taken from GITHUB_TOKEN when not set by
// file or environment mapping.
//
// Environment variables use an underscore separator and are uppercased,
// split on the first underscore into section and field:
//
//	SEARCH_KEYWORD_MATCH -> search.keyword_match
//	RUN_TARGET_DIR       -> run.target_dir
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Use rawbytes provider to avoid re-opening the file
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Only SEARCH_*, RUN_* and LOG_*
	// variables are mapped; everything else in the process environment is
	// left alone.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) != 2 {
			return ""
		}
		switch parts[0] {
		case "search", "run", "log":
			return parts[0] + "." + parts[1]
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Token is supplied out of band, never via flags or config keys.
	if !cfg.Search.Token.IsSet() {
		cfg.Search.Token = Secret(os.Getenv("GITHUB_TOKEN"))
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
// Validation happens separately so callers can layer flag overrides first.
func applyDefaults(cfg *Config) {
	if cfg.Search.KeywordMatch == "" {
		cfg.Search.KeywordMatch = "all"
	}
	if cfg.Search.PerPage == 0 {
		cfg.Search.PerPage = 100
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
