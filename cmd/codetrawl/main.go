// Codetrawl clones every GitHub repository matching a search filter and
// scans its content line-by-line against a file of regex terms,
// producing one CSV row per match.
//
// Usage:
//
//	GITHUB_TOKEN=... codetrawl \
//	    --keywords simulation --languages fortran --stars '>100' \
//	    --target-dir /tmp/trawl --query-file queries.txt \
//	    --out-file matches.csv --rm
//
// The process exits 0 even when individual repositories failed to clone
// or scan; only fatal setup errors exit non-zero.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codetrawl/internal/config"
	"github.com/fyrsmithlabs/codetrawl/internal/crawler"
	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/query"
	"github.com/fyrsmithlabs/codetrawl/internal/scanner"
	"github.com/fyrsmithlabs/codetrawl/internal/search"
	"github.com/fyrsmithlabs/codetrawl/internal/sink"
	"github.com/fyrsmithlabs/codetrawl/internal/workspace"
)

// Version information (set via ldflags during build)
var version = "dev"

var (
	configFile string

	keywords     []string
	languages    []string
	pushed       string
	stars        string
	topics       []string
	keywordMatch string

	targetDir  string
	queryFile  string
	outFile    string
	remove     bool
	ignoreCase bool
	workers    int

	verbosity string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "codetrawl",
	Short: "Clone and scan GitHub repositories matching a search filter",
	Long: `codetrawl discovers GitHub repositories matching a set of filter
criteria, shallow-clones each one, and scans its text content
line-by-line against a file of regex terms. Every (file, line, term)
match becomes one CSV row.

The GitHub token is read from the GITHUB_TOKEN environment variable.

Examples:
  # Find MPI usage in recently pushed Fortran repos
  codetrawl -k mpi -l fortran -p '>2024-01-01' \
      -d /tmp/trawl -q queries.txt -o matches.csv --rm

  # Popular repos on any of several keywords
  codetrawl -k simulation -k solver --keyword-match any -s '>500' \
      -d /tmp/trawl -q queries.txt -o matches.csv`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML config file")

	f.StringSliceVarP(&keywords, "keywords", "k", nil, "search keywords (repeat or comma-separate)")
	f.StringSliceVarP(&languages, "languages", "l", nil, "limit search to these languages")
	f.StringVarP(&pushed, "pushed", "p", "", "limit by pushed date, e.g. '>2024-01-01'")
	f.StringVarP(&stars, "stars", "s", "", "limit by star count, e.g. '>100'")
	f.StringSliceVarP(&topics, "topics", "t", nil, "limit search to these topics")
	f.StringVar(&keywordMatch, "keyword-match", "", "combine keywords with 'all' or 'any' (default all)")

	f.StringVarP(&targetDir, "target-dir", "d", "", "directory to clone repositories into")
	f.StringVarP(&queryFile, "query-file", "q", "", "file of regex terms, one per line")
	f.StringVarP(&outFile, "out-file", "o", "", "CSV file to write matches into")
	f.BoolVar(&remove, "rm", false, "remove each repository after it is scanned")
	f.BoolVar(&ignoreCase, "ignore-case", false, "match query terms case-insensitively")
	f.IntVarP(&workers, "workers", "w", 0, "concurrent clone+scan tasks (default 8)")

	f.StringVarP(&verbosity, "verbosity", "v", "", "log level: trace, debug, info, warn, or error")
	f.StringVar(&logFormat, "log-format", "", "log format: console or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the pipeline and blocks until every admitted repository
// task is terminal. Any error returned here is a fatal setup error.
func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	log, err := logging.NewLogger(&logging.Config{Level: level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer log.Sync()

	// Stop admitting work on SIGINT/SIGTERM; in-flight clones and scans
	// abort promptly through the context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	terms, err := query.LoadFile(cfg.Run.QueryFile, cfg.Run.IgnoreCase)
	if err != nil {
		return err
	}

	if err := ensureTargetDir(cfg.Run.TargetDir); err != nil {
		return err
	}

	client, err := search.NewGitHubClient(ctx, cfg.Search.Token)
	if err != nil {
		return err
	}

	planner, err := search.NewPlanner(client, search.FilterFromConfig(cfg.Search), cfg.Search.PerPage, log)
	if err != nil {
		return err
	}
	log.Debug("assembled search query", zap.String("query", planner.Query()))

	out, err := sink.NewCSVSink(cfg.Run.OutFile)
	if err != nil {
		return err
	}

	c := crawler.New(
		planner,
		workspace.NewManager(cfg.Run.TargetDir, log),
		scanner.New(terms, log),
		out,
		cfg.Run.Workers,
		cfg.Run.Remove,
		log,
	)

	summary, runErr := c.Run(ctx)

	// The sink closes only after every admitted task is terminal.
	if err := out.Close(); err != nil {
		log.Error("failed to close output", zap.Error(err))
	}

	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}

	log.Info("wrote results",
		zap.String("out_file", cfg.Run.OutFile),
		zap.Int64("matches", summary.Matches))
	return nil
}

// loadConfig layers CLI flags over file and environment configuration,
// then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("keywords") {
		cfg.Search.Keywords = keywords
	}
	if f.Changed("languages") {
		cfg.Search.Languages = languages
	}
	if f.Changed("pushed") {
		cfg.Search.Pushed = pushed
	}
	if f.Changed("stars") {
		cfg.Search.Stars = stars
	}
	if f.Changed("topics") {
		cfg.Search.Topics = topics
	}
	if f.Changed("keyword-match") {
		cfg.Search.KeywordMatch = keywordMatch
	}
	if f.Changed("target-dir") {
		cfg.Run.TargetDir = targetDir
	}
	if f.Changed("query-file") {
		cfg.Run.QueryFile = queryFile
	}
	if f.Changed("out-file") {
		cfg.Run.OutFile = outFile
	}
	if f.Changed("rm") {
		cfg.Run.Remove = remove
	}
	if f.Changed("ignore-case") {
		cfg.Run.IgnoreCase = ignoreCase
	}
	if f.Changed("workers") {
		cfg.Run.Workers = workers
	}
	if f.Changed("verbosity") {
		cfg.Log.Level = verbosity
	}
	if f.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensureTargetDir creates the clone target directory and verifies it is
// writable. An unwritable target is a fatal setup error.
func ensureTargetDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("target directory not usable: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".codetrawl-probe-*")
	if err != nil {
		return fmt.Errorf("target directory not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
