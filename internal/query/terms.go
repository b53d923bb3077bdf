// Package query loads and compiles the set of regex terms that every
// scanned line is tested against.
package query

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrEmptyQueryFile indicates the query file contained no usable terms.
var ErrEmptyQueryFile = errors.New("query file contains no terms")

// Term is one compiled query term. Pattern is the term exactly as written
// in the query file; match records carry it verbatim.
type Term struct {
	Pattern string
	re      *regexp.Regexp
}

// Match reports whether the term matches the given line.
func (t *Term) Match(line string) bool {
	return t.re.MatchString(line)
}

// TermSet is an ordered, immutable sequence of compiled terms. It is
// shared read-only by every concurrent scanner.
type TermSet struct {
	terms []Term
}

// LoadFile reads a query file (one regex per line) and compiles it.
// Blank lines and lines starting with '#' are skipped. Any failure here
// is a fatal setup error: the caller must not start repository work.
func LoadFile(path string, ignoreCase bool) (*TermSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer f.Close()

	var patterns []string
	var lines []int
	scanner := bufio.NewScanner(f)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
		lines = append(lines, lineno)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}

	set, err := Compile(patterns, ignoreCase)
	if err != nil {
		var badTerm *TermError
		if errors.As(err, &badTerm) {
			return nil, fmt.Errorf("%s line %d: %w", path, lines[badTerm.Index], err)
		}
		return nil, err
	}
	return set, nil
}

// TermError reports which term in a pattern list failed to compile.
type TermError struct {
	Index   int
	Pattern string
	Err     error
}

func (e *TermError) Error() string {
	return fmt.Sprintf("invalid query term %q: %v", e.Pattern, e.Err)
}

func (e *TermError) Unwrap() error { return e.Err }

// Compile builds a TermSet from raw patterns, preserving order.
// When ignoreCase is set every pattern is compiled case-insensitively.
func Compile(patterns []string, ignoreCase bool) (*TermSet, error) {
	if len(patterns) == 0 {
		return nil, ErrEmptyQueryFile
	}

	terms := make([]Term, 0, len(patterns))
	for i, pattern := range patterns {
		expr := pattern
		if ignoreCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, &TermError{Index: i, Pattern: pattern, Err: err}
		}
		terms = append(terms, Term{Pattern: pattern, re: re})
	}

	return &TermSet{terms: terms}, nil
}

// Terms returns the compiled terms in file order.
func (s *TermSet) Terms() []Term {
	return s.terms
}

// Len returns the number of terms.
func (s *TermSet) Len() int {
	return len(s.terms)
}
