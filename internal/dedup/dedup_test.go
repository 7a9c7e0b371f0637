package dedup

import (
	"testing"
	"time"
)

func TestBypassAlwaysPassTypes(t *testing.T) {
	for _, typ := range []string{"FIS_B_UNAVAILABLE", "CRL", "SERVICE_STATUS", "NOTAM", "NOTAM_TFR", "AIRMET", "G_AIRMET"} {
		if !Bypass(typ, false) {
			t.Errorf("Bypass(%q) = false, want true", typ)
		}
	}
}

func TestBypassImageryAndDlacGoThroughCache(t *testing.T) {
	for _, typ := range []string{"NEXRAD_REGIONAL", "METAR", "TAF", "SUA", "WINDS_06_HR"} {
		if Bypass(typ, false) {
			t.Errorf("Bypass(%q) = true, want false", typ)
		}
	}
}

func TestBypassCancellationsGoThroughCache(t *testing.T) {
	for _, typ := range []string{"CANCEL_CWA", "CANCEL_G_AIRMET", "CANCEL_NOTAM"} {
		if Bypass(typ, false) {
			t.Errorf("Bypass(%q) = true, want false (cancellations are not in bypassLevel3's literal/prefix set)", typ)
		}
	}
}

func TestBypassPirepDependsOnConfig(t *testing.T) {
	if !Bypass("PIREP", false) {
		t.Errorf("Bypass(PIREP, false) = false, want true (default: bypass)")
	}
	if Bypass("PIREP", true) {
		t.Errorf("Bypass(PIREP, true) = true, want false (stored when enabled)")
	}
}

func TestCacheAdmitsNewDigestOnce(t *testing.T) {
	c := New(45*time.Minute, 10*time.Minute)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if !c.Admit([]byte("hello"), now) {
		t.Errorf("first Admit = false, want true")
	}
	if c.Admit([]byte("hello"), now.Add(time.Minute)) {
		t.Errorf("second Admit = true, want false (duplicate)")
	}
	if !c.Admit([]byte("world"), now) {
		t.Errorf("Admit of a different payload = false, want true")
	}
}

func TestCacheExpungeDropsStaleEntries(t *testing.T) {
	c := New(10*time.Minute, time.Minute)
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	c.Admit([]byte("a"), base)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}

	// Past the expunge interval, and "a" is now stale (past expireMsgTime)
	// relative to this call's "now". A fresh digest triggers the sweep.
	later := base.Add(20 * time.Minute)
	c.Admit([]byte("b"), later)

	if c.Len() != 1 {
		t.Fatalf("Len() = %d after expunge, want 1 (only %q survives)", c.Len(), "b")
	}
}

func TestCacheRefreshesLastSeenOnRepeat(t *testing.T) {
	c := New(10*time.Minute, time.Hour)
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	c.Admit([]byte("a"), base)
	// Re-seen just under the expiry window each time keeps it alive.
	c.Admit([]byte("a"), base.Add(9*time.Minute))
	c.Admit([]byte("a"), base.Add(18*time.Minute))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (repeated refresh keeps the single entry)", c.Len())
	}
}
