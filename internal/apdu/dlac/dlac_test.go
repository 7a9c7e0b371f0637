package dlac

import "testing"

func TestDecodeStripsPadding(t *testing.T) {
	ba := []byte{0x00, 0x00, 0x00}
	got := Decode(ba, 0, 3)
	if got != "" {
		t.Fatalf("expected empty string for all-zero (ETX) bytes, got %q", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hex := Encode("TEST")
	ba := make([]byte, len(hex)/2)
	for i := range ba {
		var b byte
		for _, r := range hex[i*2 : i*2+2] {
			b <<= 4
			switch {
			case r >= '0' && r <= '9':
				b |= byte(r - '0')
			default:
				b |= byte(r-'a') + 10
			}
		}
		ba[i] = b
	}

	got := Decode(ba, 0, len(ba))
	if got != "TEST" {
		t.Fatalf("round trip: got %q, want %q", got, "TEST")
	}
}

func TestDecodeTabExpansion(t *testing.T) {
	// DLAC char 28 is TAB, followed by a count of spaces (here, 3).
	// Packed 6-bit stream: [28, 3, 0 (ETX pad)] -> 3 bytes.
	// c1=28 (011100), c2=3 (000011), c3=0 (000000)
	ba := []byte{
		(28 << 2) | (3 >> 4),
		(3 << 4) | (0 >> 2),
		(0 << 6) | 0,
	}
	got := Decode(ba, 0, len(ba))
	if got != "   " {
		t.Fatalf("tab expansion: got %q (len %d), want 3 spaces", got, len(got))
	}
}
