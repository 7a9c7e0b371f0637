package normalize

import (
	"testing"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/config"
)

func textRecord(status int, text string) *twgo.Record {
	return &twgo.Record{
		RecordCount: 1,
		TextRecords: []twgo.TextRecord{
			{ReportNumber: 501, ReportYear: 26, ReportStatus: status, Text: text},
		},
	}
}

func TestNotamFamilyCancel(t *testing.T) {
	hdr := apdu.Header{}
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()

	got, err := NotamFamily(textRecord(0, "anything"), nil, 8, hdr, "KXYZ", reception, cfg)
	if err != nil {
		t.Fatalf("NotamFamily returned error: %v", err)
	}
	c, ok := got.(*CancelNotam)
	if !ok {
		t.Fatalf("got %T, want *CancelNotam", got)
	}
	if c.Type != "CANCEL_NOTAM" {
		t.Errorf("Type = %q, want CANCEL_NOTAM", c.Type)
	}
	if c.UniqueName != "26-501" {
		t.Errorf("UniqueName = %q, want 26-501", c.UniqueName)
	}
}

func TestNotamFamilyRenewOnlyPing(t *testing.T) {
	hdr := apdu.Header{}
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()

	got, err := NotamFamily(textRecord(1, ""), nil, 8, hdr, "KXYZ", reception, cfg)
	if err != nil {
		t.Fatalf("NotamFamily returned error: %v", err)
	}
	n, ok := got.(*Notam)
	if !ok {
		t.Fatalf("got %T, want *Notam", got)
	}
	if !n.RenewOnly {
		t.Errorf("RenewOnly = false, want true")
	}
	if n.Subtype != "TFR" {
		t.Errorf("Subtype = %q, want TFR", n.Subtype)
	}
}

func TestNotamFamilyD(t *testing.T) {
	hdr := apdu.Header{}
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()

	text := "NOTAM-D KXYZ KXYZ !XYZ 03/001 XYZ RWY 09/27 CLSD 2603151200-2603161200"
	got, err := NotamFamily(textRecord(1, text), nil, 8, hdr, "KXYZ", reception, cfg)
	if err != nil {
		t.Fatalf("NotamFamily returned error: %v", err)
	}
	n, ok := got.(*Notam)
	if !ok {
		t.Fatalf("got %T, want *Notam", got)
	}
	if n.Subtype != "D" {
		t.Errorf("Subtype = %q, want D", n.Subtype)
	}
	if n.Accountable != "XYZ" {
		t.Errorf("Accountable = %q, want XYZ", n.Accountable)
	}
	if n.NotamNumber != "03/001" {
		t.Errorf("NotamNumber = %q, want 03/001", n.NotamNumber)
	}
	if n.Affected != "XYZ" {
		t.Errorf("Affected = %q, want XYZ", n.Affected)
	}
	if n.Keyword != "RWY" {
		t.Errorf("Keyword = %q, want RWY", n.Keyword)
	}
	if n.StartOfActivityTime == nil || n.EndOfValidityTime == nil {
		t.Fatalf("expected both validity times to be set")
	}
	wantStart := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	if !n.StartOfActivityTime.Equal(wantStart) {
		t.Errorf("StartOfActivityTime = %v, want %v", n.StartOfActivityTime, wantStart)
	}
	if !n.ExpirationTime.Equal(*n.EndOfValidityTime) {
		t.Errorf("ExpirationTime should follow end_of_validity when not PERM")
	}
}

func TestNotamFamilyPerm(t *testing.T) {
	hdr := apdu.Header{}
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()

	text := "NOTAM-FDC KXYZ KXYZ !XYZ 03/002 XYZ OBST TOWER LGT OUT 2603151200-PERM"
	got, err := NotamFamily(textRecord(1, text), nil, 8, hdr, "KXYZ", reception, cfg)
	if err != nil {
		t.Fatalf("NotamFamily returned error: %v", err)
	}
	n := got.(*Notam)
	if !n.EndOfValidityTime.Equal(cfg.NotamPermTime) {
		t.Errorf("EndOfValidityTime = %v, want PERM sentinel %v", n.EndOfValidityTime, cfg.NotamPermTime)
	}
	// A PERM NOTAM must not use its own end-of-validity as expiration.
	if n.ExpirationTime.Equal(cfg.NotamPermTime) {
		t.Errorf("ExpirationTime should not be the PERM sentinel")
	}
}

func TestNotamFamilyUnparseableText(t *testing.T) {
	hdr := apdu.Header{}
	_, err := NotamFamily(textRecord(1, "GARBAGE"), nil, 8, hdr, "KXYZ", time.Now(), config.Default())
	if err != ErrRegexDidNotMatch {
		t.Fatalf("err = %v, want ErrRegexDidNotMatch", err)
	}
}

func TestNotamFamilyTooManyRecords(t *testing.T) {
	rec := &twgo.Record{RecordCount: 2}
	_, err := NotamFamily(rec, nil, 8, apdu.Header{}, "KXYZ", time.Now(), config.Default())
	if err != ErrTooManyRecords {
		t.Fatalf("err = %v, want ErrTooManyRecords", err)
	}
}
