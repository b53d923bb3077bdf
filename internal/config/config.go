// Package config provides configuration loading for codetrawl.
//
// A single immutable Config is constructed once at startup and passed
// explicitly into every component; there is no global lookup.
package config

import (
	"errors"
	"fmt"
)

// Config holds the complete codetrawl configuration.
type Config struct {
	Search SearchConfig `koanf:"search"`
	Run    RunConfig    `koanf:"run"`
	Log    LogConfig    `koanf:"log"`
}

// SearchConfig holds the repository search criteria and API settings.
type SearchConfig struct {
	Keywords  []string `koanf:"keywords"`
	Languages []string `koanf:"languages"`
	Pushed    string   `koanf:"pushed"`
	Stars     string   `koanf:"stars"`
	Topics    []string `koanf:"topics"`

	// KeywordMatch selects how keywords combine in the search query:
	// "all" (space-joined, GitHub's implicit AND) or "any" (OR-joined).
	KeywordMatch string `koanf:"keyword_match"`

	PerPage int    `koanf:"per_page"`
	Token   Secret `koanf:"token"`
}

// RunConfig holds pipeline execution settings.
type RunConfig struct {
	TargetDir  string `koanf:"target_dir"`
	QueryFile  string `koanf:"query_file"`
	OutFile    string `koanf:"out_file"`
	Remove     bool   `koanf:"remove"`
	IgnoreCase bool   `koanf:"ignore_case"`

	// Workers caps concurrent clone+scan tasks. Each task holds a
	// nontrivial number of file descriptors, so this stays well under
	// the OS ceiling.
	Workers int `koanf:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

const (
	// MaxWorkers bounds the admission slot count.
	MaxWorkers = 64

	// maxPerPage is the GitHub search API page size ceiling.
	maxPerPage = 100
)

// Validate checks the configuration. Any error returned here is a fatal
// setup error: the run aborts before any repository work begins.
func (c *Config) Validate() error {
	if len(c.Search.Keywords) == 0 {
		return errors.New("at least one search keyword is required")
	}
	if !c.Search.Token.IsSet() {
		return errors.New("GitHub token not set (GITHUB_TOKEN)")
	}
	if c.Search.KeywordMatch != "all" && c.Search.KeywordMatch != "any" {
		return fmt.Errorf("keyword_match must be 'all' or 'any', got %q", c.Search.KeywordMatch)
	}
	if c.Search.PerPage < 1 || c.Search.PerPage > maxPerPage {
		return fmt.Errorf("per_page must be 1-%d, got %d", maxPerPage, c.Search.PerPage)
	}
	if c.Run.Workers < 1 || c.Run.Workers > MaxWorkers {
		return fmt.Errorf("workers must be 1-%d, got %d", MaxWorkers, c.Run.Workers)
	}
	if c.Run.TargetDir == "" {
		return errors.New("target directory is required")
	}
	if c.Run.QueryFile == "" {
		return errors.New("query file path is required")
	}
	if c.Run.OutFile == "" {
		return errors.New("output file path is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format)
	}
	return nil
}
