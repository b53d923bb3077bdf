package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codetrawl/internal/config"
)

// maxQueryLength is the GitHub search API limit on query strings.
const maxQueryLength = 256

// Filter is the immutable set of search criteria for one run.
type Filter struct {
	Keywords  []string
	Languages []string
	Pushed    string
	Stars     string
	Topics    []string

	// KeywordMatch is "all" (space-joined, GitHub's implicit AND) or
	// "any" (OR-joined). Topics and languages always combine as
	// repeated qualifiers.
	KeywordMatch string
}

// FilterFromConfig builds a Filter from the search configuration.
func FilterFromConfig(cfg config.SearchConfig) Filter {
	return Filter{
		Keywords:     cfg.Keywords,
		Languages:    cfg.Languages,
		Pushed:       cfg.Pushed,
		Stars:        cfg.Stars,
		Topics:       cfg.Topics,
		KeywordMatch: cfg.KeywordMatch,
	}
}

// Comparator is a parsed `<op><value>` search criterion.
type Comparator struct {
	Op    string // ">", ">=", "<", "<=", or "" for equality and ranges
	Value string
}

// String renders the comparator in GitHub qualifier syntax.
func (c Comparator) String() string {
	return c.Op + c.Value
}

// ParseComparator splits an optional leading operator from its value.
func ParseComparator(s string) Comparator {
	for _, op := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(s, op) {
			return Comparator{Op: op, Value: strings.TrimPrefix(s, op)}
		}
	}
	return Comparator{Value: s}
}

// QueryString translates the filter into a GitHub repository search
// query. A malformed criterion or an over-long query is a fatal setup
// error.
func (f Filter) QueryString() (string, error) {
	if len(f.Keywords) == 0 {
		return "", fmt.Errorf("no keywords in filter")
	}

	var b strings.Builder
	switch f.KeywordMatch {
	case "any":
		b.WriteString(strings.Join(f.Keywords, " OR "))
	default:
		b.WriteString(strings.Join(f.Keywords, " "))
	}

	for _, lang := range f.Languages {
		b.WriteString(" language:")
		b.WriteString(lang)
	}

	if f.Pushed != "" {
		c := ParseComparator(f.Pushed)
		if err := validateDate(c.Value); err != nil {
			return "", fmt.Errorf("invalid pushed filter %q: %w", f.Pushed, err)
		}
		b.WriteString(" pushed:")
		b.WriteString(c.String())
	}

	if f.Stars != "" {
		c := ParseComparator(f.Stars)
		if err := validateCount(c.Value); err != nil {
			return "", fmt.Errorf("invalid stars filter %q: %w", f.Stars, err)
		}
		b.WriteString(" stars:")
		b.WriteString(c.String())
	}

	for _, topic := range f.Topics {
		b.WriteString(" topic:")
		b.WriteString(topic)
	}

	q := b.String()
	if len(q) > maxQueryLength {
		return "", fmt.Errorf("query string exceeds %d characters (%d)", maxQueryLength, len(q))
	}
	return q, nil
}

// validateDate accepts YYYY-MM-DD values and lo..hi ranges of them.
func validateDate(v string) error {
	for _, part := range strings.Split(v, "..") {
		if part == "" || part == "*" {
			continue
		}
		if _, err := time.Parse("2006-01-02", part); err != nil {
			return fmt.Errorf("expected YYYY-MM-DD date: %q", part)
		}
	}
	return nil
}

// validateCount accepts non-negative integers and lo..hi ranges of them.
func validateCount(v string) error {
	for _, part := range strings.Split(v, "..") {
		if part == "" || part == "*" {
			continue
		}
		if _, err := strconv.Atoi(part); err != nil {
			return fmt.Errorf("expected integer: %q", part)
		}
	}
	return nil
}
