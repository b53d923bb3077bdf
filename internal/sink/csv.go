// Package sink persists match records to the output artifact. One sink
// instance is the single serialization point for all concurrent
// scanners.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/fyrsmithlabs/codetrawl/internal/scanner"
)

// header names the columns of the output artifact, one row per match.
var header = []string{"owner", "name", "path", "line", "term", "text"}

// CSVSink writes match records as CSV rows. Writes are serialized by a
// mutex so records from concurrent scanners never interleave into a
// malformed row. Opened once at run start; closed only after every
// admitted task is terminal.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVSink creates the output file, truncating any previous artifact,
// and writes the header row. A failure here is a fatal setup error.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write output header: %w", err)
	}

	return &CSVSink{f: f, w: w}, nil
}

// Write appends one record. Safe for concurrent use.
func (s *CSVSink) Write(rec scanner.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		rec.Owner,
		rec.Name,
		rec.Path,
		strconv.Itoa(rec.Line),
		rec.Term,
		rec.Text,
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write match record: %w", err)
	}
	return nil
}

// Flush commits buffered rows to the file. The crawler calls this
// after each repository's scan so records are durable before that
// repository's workspace may be removed.
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}
