package reconstruct

import (
	"encoding/hex"
	"testing"
	"time"
)

func TestDesegmenterReassemblesTwoSegments(t *testing.T) {
	// A minimal TWGO text payload: 6-byte header (record_format=2,
	// record_count=1) followed by one 6-byte cancelled text record.
	header := []byte{0x20, 0x10, 0x00, 0x00, 0x00, 0x00}
	recordFirstHalf := []byte{0x00, 0x06, 0x00}
	recordSecondHalf := []byte{0x00, 0x00, 0x00}

	seg1 := append(append([]byte{}, header...), recordFirstHalf...)
	seg2 := append(append([]byte{}, header...), recordSecondHalf...) // header repeated per segment

	d := NewDesegmenter(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	rec, err := d.Process(Segment{
		ProductID: 8, ProductFileID: 5, ProductFileLength: 2,
		ApduNumber: 1, PayloadHex: hex.EncodeToString(seg1),
	}, now)
	if err != nil {
		t.Fatalf("segment 1: unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("segment 1: expected nil (incomplete), got %+v", rec)
	}

	rec, err = d.Process(Segment{
		ProductID: 8, ProductFileID: 5, ProductFileLength: 2,
		ApduNumber: 2, PayloadHex: hex.EncodeToString(seg2),
	}, now)
	if err != nil {
		t.Fatalf("segment 2: unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("segment 2: expected a completed record, got nil")
	}
	if rec.RecordFormat != 2 || len(rec.TextRecords) != 1 {
		t.Fatalf("got %+v", rec)
	}
}

func TestDesegmenterRejectsOutOfRangeIndex(t *testing.T) {
	d := NewDesegmenter(60*time.Minute, nil)
	_, err := d.Process(Segment{
		ProductID: 8, ProductFileID: 1, ProductFileLength: 2,
		ApduNumber: 5, PayloadHex: "00",
	}, time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}

func TestDesegmenterIgnoresDuplicateSegment(t *testing.T) {
	d := NewDesegmenter(60*time.Minute, nil)
	seg := Segment{ProductID: 8, ProductFileID: 2, ProductFileLength: 2, ApduNumber: 1, PayloadHex: "aabbcc"}
	now := time.Unix(0, 0)

	if _, err := d.Process(seg, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := d.Process(seg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("duplicate segment should not complete the message, got %+v", rec)
	}
}

func TestDesegmenterExpunge(t *testing.T) {
	d := NewDesegmenter(10*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	_, _ = d.Process(Segment{ProductID: 8, ProductFileID: 9, ProductFileLength: 2, ApduNumber: 1, PayloadHex: "aa"}, now)
	d.Expunge(now.Add(20 * time.Minute))

	if len(d.pending) != 0 {
		t.Fatalf("expected pending map to be emptied, got %d entries", len(d.pending))
	}
}
