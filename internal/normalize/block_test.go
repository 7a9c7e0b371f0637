package normalize

import (
	"strings"
	"testing"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/globalblock"
	"fisb/internal/config"
)

func TestAlternateBlockNumberHighRes(t *testing.T) {
	// From the original's worked example: block 276640 -> row 614, col 340.
	got := alternateBlockNumber(276640, globalblock.ScaleHigh)
	want := 614340
	if got != want {
		t.Errorf("alternateBlockNumber(276640, high) = %d, want %d", got, want)
	}
}

func TestNormalizeBinsBelow60(t *testing.T) {
	above60, out := normalizeBins(500340, globalblock.ScaleHigh, "somebins")
	if above60 {
		t.Errorf("above60 = true, want false for row 500")
	}
	if len(out) != 1 || out[0] != "somebins" {
		t.Errorf("out = %v, want unchanged single-element slice", out)
	}
}

func TestNormalizeBinsAbove60(t *testing.T) {
	bins := ""
	for i := 0; i < 128; i++ {
		if i%2 == 0 {
			bins += "L"
		} else {
			bins += "R"
		}
	}
	above60, out := normalizeBins(950000, globalblock.ScaleHigh, bins)
	if !above60 {
		t.Fatalf("above60 = false, want true for row 950")
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if len(out[0]) != 128 || len(out[1]) != 128 {
		t.Errorf("split bins length = %d/%d, want 128/128", len(out[0]), len(out[1]))
	}
}

func TestBlockFamilyNexradRegional(t *testing.T) {
	hdr := apdu.Header{Hour: 14, Minute: 20}
	reception := time.Date(2026, 3, 15, 14, 21, 0, 0, time.UTC)
	cfg := config.Default()

	blk := &globalblock.Block{
		BlockNumber: 276640,
		ElementID:   1,
		ScaleFactor: globalblock.ScaleHigh,
		Bins:        strings.Repeat("X", 128),
	}

	msgs, err := BlockFamily(blk, 63, hdr, reception, cfg)
	if err != nil {
		t.Fatalf("BlockFamily returned error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Type != "NEXRAD_REGIONAL" {
		t.Errorf("Type = %q, want NEXRAD_REGIONAL", m.Type)
	}
	if m.AltBlockNumber != 614340 {
		t.Errorf("AltBlockNumber = %d, want 614340", m.AltBlockNumber)
	}
	if m.ObservationTime == nil {
		t.Fatalf("ObservationTime not set")
	}
}

func TestBlockFamilyEmptyBlocks(t *testing.T) {
	hdr := apdu.Header{Hour: 14, Minute: 20}
	reception := time.Date(2026, 3, 15, 14, 21, 0, 0, time.UTC)
	cfg := config.Default()

	blk := &globalblock.Block{
		BlockNumber: 1000,
		ElementID:   0,
		ScaleFactor: globalblock.ScaleHigh,
		EmptyBlocks: "101",
	}

	msgs, err := BlockFamily(blk, 84, hdr, reception, cfg)
	if err != nil {
		t.Fatalf("BlockFamily returned error: %v", err)
	}
	// "1" + "101" = "1101" -> 3 empty blocks flagged.
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	for _, m := range msgs {
		if len(m.Bins) != 128 {
			t.Errorf("Bins length = %d, want 128", len(m.Bins))
		}
	}
}

func TestBlockFamilyTurbulenceAltitudeLevel(t *testing.T) {
	hdr := apdu.Header{Hour: 14, Minute: 20}
	reception := time.Date(2026, 3, 15, 14, 21, 0, 0, time.UTC)
	cfg := config.Default()

	blk := &globalblock.Block{
		BlockNumber:   500,
		ElementID:     1,
		ScaleFactor:   globalblock.ScaleMedium,
		AltitudeLevel: 18000,
		HasAltitude:   true,
		Bins:          strings.Repeat("Y", 128),
	}

	msgs, err := BlockFamily(blk, 90, hdr, reception, cfg)
	if err != nil {
		t.Fatalf("BlockFamily returned error: %v", err)
	}
	if msgs[0].Type != "TURBULENCE_18000" {
		t.Errorf("Type = %q, want TURBULENCE_18000", msgs[0].Type)
	}
	if msgs[0].ValidTime == nil {
		t.Fatalf("ValidTime not set")
	}
}

