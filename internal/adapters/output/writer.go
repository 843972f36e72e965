// Package output provides adapters for writing application output.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MyCarrier-DevOps/refspan/internal/domain"
)

// Writer writes resolution results to the configured output destination.
// By default, it writes to stdout.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteCommits writes the resolved commit ids, one per line, with no prefix
// or decoration so downstream reporting can consume them directly.
func (w *Writer) WriteCommits(commits []domain.CommitID) error {
	for _, id := range commits {
		if _, err := fmt.Fprintln(w.out, id); err != nil {
			return err
		}
	}
	return nil
}

// WriteRange writes the signed-token range, one token per line. Negated
// tokens carry a "^" prefix, matching rev-list exclusion syntax, so the
// output is both parseable by ParseRange and usable as-is with git.
func (w *Writer) WriteRange(rng domain.RevisionRange) error {
	for _, tok := range rng {
		line := string(tok.ID)
		if tok.Negated {
			line = "^" + line
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}
	return nil
}

// ParseRange reads a textual range back into tokens. Blank lines are
// dropped and duplicates collapse, so parsing reproduces the same token
// multiset the writer emitted.
func ParseRange(r io.Reader) (domain.RevisionRange, error) {
	var rng domain.RevisionRange

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tok := domain.RevToken{}
		if strings.HasPrefix(line, "^") {
			tok.Negated = true
			line = line[1:]
		}
		tok.ID = domain.CommitID(line)
		rng = rng.Append(tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read range: %w", err)
	}

	return rng, nil
}
