package main

import (
	"context"
	"testing"
	"time"

	"fisb/internal/config"
	"fisb/internal/dedup"
	"fisb/internal/frame"
	"fisb/internal/harvest"
	"fisb/internal/reconstruct"
)

func TestFrameStageEchoesThePacket(t *testing.T) {
	pkt := &frame.Packet{Station: "KXYZ", ReceptionTime: time.Now()}
	s := &frameStage{}

	out := s.process(pkt)
	if len(out) != 1 || out[0].(*frame.Packet) != pkt {
		t.Fatalf("got %v, want the packet echoed back unchanged", out)
	}
	if s.finish() != nil {
		t.Errorf("frameStage.finish() = %v, want nil", s.finish())
	}
}

func TestApduStageSkipsUndecodableFrames(t *testing.T) {
	pkt := &frame.Packet{
		Station:       "KXYZ",
		ReceptionTime: time.Now(),
		Frames: []frame.Frame{
			{Type: frame.TypeAPDU, Payload: []byte{0x00}}, // too short to decode
			{Type: frame.TypeCRL, Payload: []byte{0x00}},  // wrong frame type for this stage
		},
	}
	s := &apduStage{}

	if out := s.process(pkt); len(out) != 0 {
		t.Errorf("got %d decoded APDUs from undecodable input, want 0", len(out))
	}
}

func TestReconstructStageIgnoresNonAPDUFrames(t *testing.T) {
	cfg := config.Default()
	s := &reconstructStage{
		desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, nil),
		twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil),
	}
	pkt := &frame.Packet{
		Station:       "KXYZ",
		ReceptionTime: time.Now(),
		Frames:        []frame.Frame{{Type: frame.TypeCRL, Payload: []byte{0x00}}},
	}

	if out := s.process(pkt); len(out) != 0 {
		t.Errorf("got %d matches from a non-APDU frame, want 0", len(out))
	}
	if s.finish() != nil {
		t.Errorf("reconstructStage.finish() = %v, want nil", s.finish())
	}
}

func TestNormalizeFrameUnknownFrameTypeYieldsNothing(t *testing.T) {
	cfg := config.Default()
	desegmenter := reconstruct.NewDesegmenter(cfg.SegmentExpire, nil)
	matcher := reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil)
	pkt := &frame.Packet{Station: "KXYZ", ReceptionTime: time.Now()}

	rec, ok := normalizeFrame(cfg, desegmenter, matcher, pkt, frame.Frame{Type: frame.TypeReserved, Payload: []byte{0x00}})
	if ok || rec != nil {
		t.Errorf("got (%v, %v) for a reserved frame, want (nil, false)", rec, ok)
	}
}

func TestDedupAndHarvestStagesTolerateEmptyPackets(t *testing.T) {
	cfg := config.Default()
	pkt := &frame.Packet{Station: "KXYZ", ReceptionTime: time.Now()}

	dedupRunner := &dedupStage{
		cfg:         cfg,
		desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, nil),
		twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil),
		cache:       dedup.New(cfg.DedupExpireMsgTime, cfg.DedupExpungeInterval),
	}
	if out := dedupRunner.process(pkt); len(out) != 0 {
		t.Errorf("dedupStage got %d records from an empty packet, want 0", len(out))
	}

	mem := newMemStore()
	harvestRunner := &harvestStage{
		cfg:         cfg,
		desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, nil),
		twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil),
		cache:       dedup.New(cfg.DedupExpireMsgTime, cfg.DedupExpungeInterval),
		harvester:   harvest.New(mem, nullRenderer{}, cfg),
		store:       mem,
	}
	if out := harvestRunner.process(pkt); out != nil {
		t.Errorf("harvestStage.process() = %v, want nil", out)
	}
	final, ok := harvestRunner.finish().(map[string]map[string]any)
	if !ok || len(final) != 0 {
		t.Errorf("finish() = %v, want an empty store", final)
	}
}

func TestNewStageRunnerRejectsUnknownStage(t *testing.T) {
	if r := newStageRunner("bogus"); r != nil {
		t.Errorf("newStageRunner(bogus) = %v, want nil", r)
	}
}

func TestMemStoreUpsertFindDelete(t *testing.T) {
	m := newMemStore()
	ctx := context.Background()

	if err := m.Upsert(ctx, "MSG", "NOTAM-1", map[string]any{"station": "KXYZ"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	doc, found, err := m.FindOne(ctx, "MSG", "NOTAM-1")
	if err != nil || !found || doc["station"] != "KXYZ" {
		t.Fatalf("FindOne = (%v, %v, %v), want the stored doc", doc, found, err)
	}

	if err := m.Upsert(ctx, "MSG", "NOTAM-2", map[string]any{"station": "KXYZ"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	many, err := m.FindMany(ctx, "MSG", nil)
	if err != nil || len(many) != 2 {
		t.Fatalf("FindMany = (%v, %v), want 2 docs", many, err)
	}

	if err := m.Delete(ctx, "MSG", "NOTAM-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := m.FindOne(ctx, "MSG", "NOTAM-1"); found {
		t.Errorf("NOTAM-1 still present after Delete")
	}

	all := m.all()
	if len(all) != 1 {
		t.Errorf("all() = %v, want 1 remaining doc", all)
	}
}

func TestMemStoreDeleteManyIsANoOp(t *testing.T) {
	m := newMemStore()
	n, err := m.DeleteMany(context.Background(), "MSG", nil)
	if err != nil || n != 0 {
		t.Errorf("DeleteMany = (%d, %v), want (0, nil)", n, err)
	}
}
