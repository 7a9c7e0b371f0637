package reconstruct

import (
	"testing"
	"time"

	"fisb/internal/apdu/twgo"
)

func textRec(reportYear, reportNumber, reportStatus int, text string) *twgo.Record {
	return &twgo.Record{
		RecordFormat: twgo.FormatText,
		TextRecords: []twgo.TextRecord{
			{ReportYear: reportYear, ReportNumber: reportNumber, ReportStatus: reportStatus, Text: text},
		},
	}
}

func graphicRec(reportYear, reportNumber int) *twgo.Record {
	return &twgo.Record{
		RecordFormat: twgo.FormatGraphic,
		GraphicRecords: []twgo.GraphicRecord{
			{ReportYear: reportYear, ReportNumber: reportNumber},
		},
	}
}

func TestTwgoMatcherTextSentImmediately(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	out, err := m.Process(8, "KDEN", 0, textRec(24, 100, 1, "NOTAM TEXT"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.Text == nil {
		t.Fatalf("expected immediate text emission, got %+v", out)
	}
	if out.Graphics != nil {
		t.Fatalf("should not have graphics yet, got %+v", out.Graphics)
	}
}

func TestTwgoMatcherGraphicsWaitsForText(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	out, err := m.Process(11, "X", 0, graphicRec(24, 7), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("graphics alone should not emit, got %+v", out)
	}

	out, err = m.Process(11, "X", 0, textRec(24, 7, 1, "AIRMET TEXT"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.Text == nil || out.Graphics == nil {
		t.Fatalf("expected combined text+graphics emission, got %+v", out)
	}
}

func TestTwgoMatcherChangedTextDropsGraphics(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	_, _ = m.Process(11, "X", 0, textRec(24, 7, 1, "FIRST"), now)
	_, _ = m.Process(11, "X", 0, graphicRec(24, 7), now)

	out, err := m.Process(11, "X", 0, textRec(24, 7, 1, "SECOND"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.Graphics != nil {
		t.Fatalf("changed text should drop stored graphics, got %+v", out)
	}
}

func TestTwgoMatcherUnchangedTextWithGraphicsHeldSuppressed(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	out, err := m.Process(11, "X", 0, textRec(24, 7, 1, "SAME"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.Text == nil || out.Graphics != nil {
		t.Fatalf("expected (text) emission, got %+v", out)
	}

	out, err = m.Process(11, "X", 0, graphicRec(24, 7), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || out.Text == nil || out.Graphics == nil {
		t.Fatalf("expected (text+graphic) emission, got %+v", out)
	}

	out, err = m.Process(11, "X", 0, textRec(24, 7, 1, "SAME"), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("unchanged text with graphics already held should not re-emit, got %+v", out)
	}
}

func TestTwgoMatcherEmptyTextIgnoredExceptNotamTfr(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	out, err := m.Process(11, "X", 0, textRec(24, 7, 1, ""), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatalf("blank AIRMET text keep-alive should be ignored, got %+v", out)
	}

	out, err = m.Process(8, "X", 0, textRec(24, 7, 1, ""), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("blank NOTAM-TFR renewal should be sent")
	}
}

func TestTwgoMatcherCancellationAlwaysEmits(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	now := time.Unix(1700000000, 0)

	_, _ = m.Process(8, "X", 0, textRec(24, 7, 1, "ACTIVE"), now)
	out, err := m.Process(8, "X", 0, textRec(24, 7, 0, ""), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("cancellation should always emit")
	}
}

func TestTwgoMatcherRejectsMultipleTextRecords(t *testing.T) {
	m := NewTwgoMatcher(60*time.Minute, nil)
	rec := &twgo.Record{
		RecordFormat: twgo.FormatText,
		TextRecords: []twgo.TextRecord{
			{ReportYear: 24, ReportNumber: 1, ReportStatus: 1, Text: "A"},
			{ReportYear: 24, ReportNumber: 1, ReportStatus: 1, Text: "B"},
		},
	}
	if _, err := m.Process(8, "X", 0, rec, time.Unix(0, 0)); err == nil {
		t.Fatal("expected ErrMultipleTextRecords")
	}
}
