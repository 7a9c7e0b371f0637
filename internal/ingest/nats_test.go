package ingest

import "testing"

func TestDecodeEnvelopeJSON(t *testing.T) {
	data := []byte(`{"source":{"name":"dump978","application":"fisb-decode"},"line":"+0011223344;t=12345.0;"}`)
	got := decodeEnvelope(data)
	if got != "+0011223344;t=12345.0;" {
		t.Errorf("decodeEnvelope = %q, want the unwrapped line", got)
	}
}

func TestDecodeEnvelopePlainText(t *testing.T) {
	data := []byte("  +0011223344;t=12345.0;  ")
	got := decodeEnvelope(data)
	if got != "+0011223344;t=12345.0;" {
		t.Errorf("decodeEnvelope = %q, want trimmed plain line", got)
	}
}

func TestDecodeEnvelopeEmptyLineField(t *testing.T) {
	data := []byte(`{"source":{"name":"x"}}`)
	got := decodeEnvelope(data)
	if got != `{"source":{"name":"x"}}` {
		t.Errorf("decodeEnvelope with no line field should fall back to raw payload, got %q", got)
	}
}
