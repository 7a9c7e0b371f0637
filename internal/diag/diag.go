// Package diag implements the recover-log-continue boundary every
// pipeline stage wraps its work in: a malformed unit is recorded with an
// error kind and the offending bytes, and the stage moves on to the next
// unit rather than aborting the stream.
package diag

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the error taxonomy from the error handling design:
// framing, APDU, payload, reconstruction, normalization, and store
// failures are handled differently by the scheduler (store failures
// propagate to the harvester; everything else is local and dropped).
type Kind int

const (
	Framing Kind = iota
	APDU
	Payload
	Reconstruction
	Normalization
	Store
)

func (k Kind) String() string {
	switch k {
	case Framing:
		return "framing"
	case APDU:
		return "apdu"
	case Payload:
		return "payload"
	case Reconstruction:
		return "reconstruction"
	case Normalization:
		return "normalization"
	case Store:
		return "store"
	default:
		return "unknown"
	}
}

// Entry is one dropped unit of work, retained for operational review.
type Entry struct {
	ID      string
	Kind    Kind
	Stage   string
	Message string
	Raw     string // hex-encoded offending bytes, if any
	At      time.Time
}

// Log records dropped units and keeps a bounded ring of the most recent
// ones, readable through Recent, mirroring registry.Trace's role in the
// teacher as a debugging aid rather than a full audit trail.
type Log struct {
	mu      sync.Mutex
	ring    []Entry
	maxSize int
	out     *log.Logger
}

// New creates a Log that writes one line per dropped unit to out (or
// standard error diagnostics if out is nil) and retains the last
// maxSize entries for inspection.
func New(out *log.Logger, maxSize int) *Log {
	if maxSize <= 0 {
		maxSize = 256
	}
	if out == nil {
		out = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Log{maxSize: maxSize, out: out}
}

// Drop records a dropped unit of work: stage name, error kind, the
// causing error, and optionally the raw bytes that failed to decode.
func (l *Log) Drop(stage string, kind Kind, err error, raw []byte) {
	e := Entry{
		ID:      uuid.NewString(),
		Kind:    kind,
		Stage:   stage,
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
	if raw != nil {
		e.Raw = hex.EncodeToString(raw)
	}

	l.mu.Lock()
	l.ring = append(l.ring, e)
	if len(l.ring) > l.maxSize {
		l.ring = l.ring[len(l.ring)-l.maxSize:]
	}
	l.mu.Unlock()

	if l.out != nil {
		l.out.Printf("%s[%s] %s: %s", stage, kind, e.ID, err)
	}
}

// Recent returns a snapshot of the most recently dropped entries.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.ring))
	copy(out, l.ring)
	return out
}

// Guard runs fn and, if it panics, converts the panic into a dropped
// entry of the given kind rather than letting it escape the stage. This
// is the Go equivalent of the teacher's recover-wrapped parser dispatch
// in registry.Registry.Dispatch.
func Guard(l *Log, stage string, kind Kind, raw []byte, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			if l != nil {
				l.Drop(stage, kind, err, raw)
			}
		}
	}()

	err = fn()
	if err != nil && l != nil {
		l.Drop(stage, kind, err, raw)
	}
	return err
}
