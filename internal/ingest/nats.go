package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// Envelope is the NATS feed wrapper a raw ground-uplink line may
// arrive inside: metadata about the upstream receiver alongside the
// line itself. Plain unwrapped text on the subject (just the
// dump978-style line, no JSON) is accepted too.
//
// Grounded on acars.NATSWrapper's source/station envelope shape,
// generalized from ACARS message bytes to a FIS-B ground-uplink line.
type Envelope struct {
	Source *EnvelopeSource `json:"source,omitempty"`
	Line   string          `json:"line"`
}

// EnvelopeSource mirrors acars.NATSSource: which upstream application
// published this line.
type EnvelopeSource struct {
	Name        string `json:"name,omitempty"`
	Application string `json:"application,omitempty"`
}

// NATS subscribes to a subject carrying raw ground-uplink lines (or
// Envelope-wrapped lines) and feeds them into the pipeline exactly
// like Stdin does.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to url and returns a Source for subject; the
// subscription itself is made when Run starts. Call Close when the
// pipeline shuts down.
func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("ingest: connect nats: %w", err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

// Close closes the underlying NATS connection without draining it.
func (n *NATS) Close() {
	n.conn.Close()
}

// Run subscribes to the configured subject and forwards every
// decoded line until ctx is cancelled.
func (n *NATS) Run(ctx context.Context, lines chan<- string) error {
	defer close(lines)

	sub, err := n.conn.SubscribeSync(n.subject)
	if err != nil {
		return fmt.Errorf("ingest: subscribe %q: %w", n.subject, err)
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ingest: nats receive: %w", err)
		}

		line := decodeEnvelope(msg.Data)
		if line == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case lines <- line:
		}
	}
}

// decodeEnvelope extracts the raw line from a NATS payload: a JSON
// Envelope if the payload parses as one and carries a non-empty
// "line" field, otherwise the payload treated as the line itself.
func decodeEnvelope(data []byte) string {
	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Line != "" {
		return env.Line
	}
	return strings.TrimSpace(string(data))
}
