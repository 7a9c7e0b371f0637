package normalize

import (
	"testing"
	"time"

	"fisb/internal/apdu/twgo"
)

func TestSuaFamily(t *testing.T) {
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	text := "SUA 151200 SCHED1|R-1234|H|R|Test Restricted Area|2603150600|2603151800|50|200|A|Y|NFDC1|NFDC Name|DAFIF1|DAFIF Name"

	rec := twgo.TextRecord{ReportYear: 26, ReportNumber: 77, ReportStatus: 1, Text: text}
	got, err := SuaFamily(rec, reception)
	if err != nil {
		t.Fatalf("SuaFamily returned error: %v", err)
	}

	if got.UniqueName != "26-77" {
		t.Errorf("UniqueName = %q, want 26-77", got.UniqueName)
	}
	if got.AirspaceName != "Test Restricted Area" {
		t.Errorf("AirspaceName = %q, want Test Restricted Area", got.AirspaceName)
	}
	if got.ScheduleID != "SCHED1" {
		t.Errorf("ScheduleID = %q, want SCHED1", got.ScheduleID)
	}
	wantStart := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	if !got.StartTime.Equal(wantStart) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, wantStart)
	}
	wantEnd := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	if !got.EndTime.Equal(wantEnd) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, wantEnd)
	}
	if !got.ExpirationTime.Equal(wantEnd) {
		t.Errorf("ExpirationTime should equal EndTime")
	}
	if got.LowAltitude != 5000 {
		t.Errorf("LowAltitude = %d, want 5000", got.LowAltitude)
	}
	if got.HighAltitude != 20000 {
		t.Errorf("HighAltitude = %d, want 20000", got.HighAltitude)
	}
	if got.NfdcID != "NFDC1" {
		t.Errorf("NfdcID = %q, want NFDC1", got.NfdcID)
	}
}

func TestSuaFamilyCancellationIsError(t *testing.T) {
	rec := twgo.TextRecord{ReportYear: 26, ReportNumber: 1, ReportStatus: 0, Text: "anything"}
	_, err := SuaFamily(rec, time.Now())
	if err != ErrSua {
		t.Fatalf("err = %v, want ErrSua", err)
	}
}

func TestSuaFamilyMissingOptionalFields(t *testing.T) {
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	text := "SUA 151200 SCHED2|R-5678|W|M|MOA Area|2603150600|2603151800|10|50| |Y||||"

	rec := twgo.TextRecord{ReportYear: 26, ReportNumber: 78, ReportStatus: 1, Text: text}
	got, err := SuaFamily(rec, reception)
	if err != nil {
		t.Fatalf("SuaFamily returned error: %v", err)
	}
	if got.SeparationRule != "U" {
		t.Errorf("SeparationRule = %q, want U (blank normalized)", got.SeparationRule)
	}
	if got.NfdcID != "" {
		t.Errorf("NfdcID = %q, want empty when absent", got.NfdcID)
	}
}
