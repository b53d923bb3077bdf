// Package scanner walks a cloned workspace and tests every line of
// every text file against the shared query term set.
package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codetrawl/internal/logging"
	"github.com/fyrsmithlabs/codetrawl/internal/query"
	"github.com/fyrsmithlabs/codetrawl/internal/search"
)

const (
	// maxFileSize caps how large a file the scanner will read.
	maxFileSize = 10 * 1024 * 1024

	// binarySniffLen is how many leading bytes are checked for NUL.
	binarySniffLen = 8 * 1024

	// maxLineLen is the longest line the scanner will consider.
	maxLineLen = 1024 * 1024
)

// Record is one line-level search hit, the unit of output. Immutable
// once produced.
type Record struct {
	Owner string
	Name  string
	Path  string // relative to the workspace root
	Line  int    // 1-based
	Term  string
	Text  string
}

// EmitFunc receives records in traversal order. Returning an error
// aborts the scan.
type EmitFunc func(Record) error

// Scanner scans workspaces against an immutable term set. A single
// Scanner is shared by all concurrent tasks; scanning within one
// repository is strictly sequential.
type Scanner struct {
	terms *query.TermSet
	log   *logging.Logger
}

// New creates a scanner over the given term set.
func New(terms *query.TermSet, log *logging.Logger) *Scanner {
	return &Scanner{
		terms: terms,
		log:   log.Named("scanner"),
	}
}

// Scan recursively enumerates files under root, excluding version
// control metadata, and emits one record per (term, line) pair that
// matches. Binary files are skipped silently; that is not an error.
func (s *Scanner) Scan(ctx context.Context, desc search.Descriptor, root string, emit EmitFunc) error {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			// Skip .git and other dot-directories.
			if name := filepath.Base(path); strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() > maxFileSize {
			s.log.Debug("skipping oversized file",
				zap.String("repo", desc.ID()),
				zap.String("path", path),
				zap.Int64("size", info.Size()))
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		return s.scanFile(desc, path, relPath, emit)
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", desc.ID(), err)
	}
	return nil
}

// scanFile reads one file and tests every line against every term.
func (s *Scanner) scanFile(desc search.Descriptor, path, relPath string, emit EmitFunc) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file %s: %w", relPath, err)
	}

	if isBinary(content) {
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), maxLineLen)

	for lineno := 1; sc.Scan(); lineno++ {
		line := sc.Text()
		for i := range s.terms.Terms() {
			term := &s.terms.Terms()[i]
			if !term.Match(line) {
				continue
			}
			rec := Record{
				Owner: desc.Owner,
				Name:  desc.Name,
				Path:  relPath,
				Line:  lineno,
				Term:  term.Pattern,
				Text:  line,
			}
			if err := emit(rec); err != nil {
				return fmt.Errorf("emitting match from %s:%d: %w", relPath, lineno, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.log.Debug("skipping rest of file with oversized line",
				zap.String("repo", desc.ID()),
				zap.String("path", relPath))
			return nil
		}
		return fmt.Errorf("reading lines of %s: %w", relPath, err)
	}
	return nil
}

// isBinary reports whether content should be treated as binary: a NUL
// byte in the leading bytes or invalid UTF-8 anywhere.
func isBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}
