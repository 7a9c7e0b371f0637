// Package ingest supplies the pipeline's raw-line sources: stdin, the
// normal deployment per §6, and an optional NATS subscription mirroring
// the teacher's NATSWrapper-based bus ingestion.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Source produces raw ground-uplink lines (frame.ParseLine's input)
// until the context is cancelled or the underlying transport is
// exhausted, sending each onto lines. It closes lines before
// returning.
type Source interface {
	Run(ctx context.Context, lines chan<- string) error
}

// Stdin reads newline-delimited ground-uplink records from r (os.Stdin
// in normal deployment).
//
// Grounded on cmd/acars_parser/main.go's runExtract: a bufio.Scanner
// over stdin with an enlarged buffer, since JSONL/dump978 lines can
// run long.
type Stdin struct {
	r io.Reader
}

// NewStdin returns a Source reading lines from r.
func NewStdin(r io.Reader) *Stdin {
	return &Stdin{r: r}
}

// Run scans r line by line, sending each non-empty line to lines.
// Scan errors (other than io.EOF, which bufio.Scanner already
// swallows) are returned; context cancellation stops the scan and
// returns ctx.Err().
func (s *Stdin) Run(ctx context.Context, lines chan<- string) error {
	defer close(lines)

	scanner := bufio.NewScanner(s.r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lines <- line:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ingest: stdin scan: %w", err)
	}
	return nil
}
