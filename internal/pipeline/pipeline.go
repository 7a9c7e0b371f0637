// Package pipeline schedules the two cooperating contexts the
// concurrency model calls for: a single ingest context running the
// deterministic decode -> reconstruct -> normalize -> dedup -> harvest
// chain per line, and a maintenance context sweeping expired state on
// a timer. It owns every reconstruction table, the dedup cache, and
// the harvester, none of which are safe to touch from outside these
// two contexts.
//
// Grounded on cmd/acars_parser/main.go's dispatch shape, generalized
// from a one-shot CLI into a long-running scheduler via
// golang.org/x/sync/errgroup (an indirect teacher dependency promoted
// here to do the job errgroup is for: running a fixed set of
// goroutines and propagating the first error/cancellation to the
// rest).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/archive"
	"fisb/internal/config"
	"fisb/internal/crl"
	"fisb/internal/dedup"
	"fisb/internal/diag"
	"fisb/internal/frame"
	"fisb/internal/harvest"
	"fisb/internal/ingest"
	"fisb/internal/normalize"
	"fisb/internal/reconstruct"
)

var tracer = otel.Tracer("fisb/internal/pipeline")

// Pipeline wires one ingest source into the decode/reconstruct/
// normalize/dedup/harvest chain and runs the periodic maintenance
// sweep alongside it.
type Pipeline struct {
	cfg config.Config

	source  ingest.Source
	diagLog *diag.Log

	desegmenter *reconstruct.Desegmenter
	twgoMatcher *reconstruct.TwgoMatcher
	dedupCache  *dedup.Cache
	harvester   *harvest.Harvester
	archiver    *archive.ClickHouse // optional; nil disables archiving

	rsr       *frame.RSRAccumulator // optional; nil when CalculateRSR is false
	rsrMu     sync.Mutex
	rsrLatest map[string]frame.RSRResult
}

// New returns a Pipeline. archiver may be nil to run without the
// append-only archive.
func New(cfg config.Config, source ingest.Source, store harvest.Store, renderer harvest.Renderer, archiver *archive.ClickHouse, diagLog *diag.Log) *Pipeline {
	reconStore := (*reconstruct.Store)(nil) // ephemeral reconstruction tables; see internal/reconstruct.Store for a persisted option

	p := &Pipeline{
		cfg:         cfg,
		source:      source,
		diagLog:     diagLog,
		desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, reconStore),
		twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, reconStore),
		dedupCache:  dedup.New(cfg.DedupExpireMsgTime, cfg.DedupExpungeInterval),
		harvester:   harvest.New(store, renderer, cfg),
		archiver:    archiver,
	}
	if cfg.CalculateRSR {
		p.rsr = frame.NewRSRAccumulator(
			int(cfg.RSRWindowSeconds/time.Second),
			int(cfg.RSRStrideSeconds/time.Second),
			true,
		)
	}
	return p
}

// Harvester exposes the running harvester for the review server.
func (p *Pipeline) Harvester() *harvest.Harvester { return p.harvester }

// DedupCache exposes the dedup cache for the review server.
func (p *Pipeline) DedupCache() *dedup.Cache { return p.dedupCache }

// RSRStatuses returns the most recently computed per-station reception
// success rates, or an empty map if RSR tracking is disabled or no
// window has completed yet.
func (p *Pipeline) RSRStatuses() map[string]frame.RSRResult {
	p.rsrMu.Lock()
	defer p.rsrMu.Unlock()
	out := make(map[string]frame.RSRResult, len(p.rsrLatest))
	for k, v := range p.rsrLatest {
		out[k] = v
	}
	return out
}

// Run starts the source, the ingest context and the maintenance
// context and blocks until all three have returned. An error from any
// of them cancels the others; a source that ends cleanly stops ingest,
// but the maintenance context keeps running until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	lines := make(chan string, 64)
	g.Go(func() error {
		return p.source.Run(ctx, lines)
	})
	g.Go(func() error {
		return p.ingestLoop(ctx, lines)
	})
	g.Go(func() error {
		return p.maintenanceLoop(ctx)
	})

	return g.Wait()
}

// ingestLoop runs the deterministic per-line decode chain until lines
// closes or ctx is cancelled.
func (p *Pipeline) ingestLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			p.processLine(ctx, line)
		}
	}
}

// processLine decodes one ground-uplink line and dispatches each of
// its inner frames in transmitted order. Failures at any stage are
// recorded via diag.Guard and do not stop the stream.
func (p *Pipeline) processLine(ctx context.Context, line string) {
	ctx, span := tracer.Start(ctx, "frame")
	defer span.End()

	pkt, err := frame.ParseLine(line, p.cfg.CalculateRSR)
	if err != nil {
		if err != frame.ErrSkip {
			p.diagLog.Drop("frame", diag.Framing, err, []byte(line))
		}
		return
	}

	if p.rsr != nil {
		tisbID := 0
		if len(pkt.TISBSiteID) == 1 {
			tisbID = int(pkt.TISBSiteID[0] - '0')
			if pkt.TISBSiteID[0] >= 'A' {
				tisbID = int(pkt.TISBSiteID[0]-'A') + 10
			}
		}
		if results := p.rsr.Observe(pkt.ReceptionTime, tisbID, pkt.Station); results != nil {
			p.rsrMu.Lock()
			p.rsrLatest = results
			p.rsrMu.Unlock()
			for station, r := range results {
				if r.Percent < p.cfg.RSRWarnPercent {
					log.Printf("pipeline: low reception success rate: station=%s count=%d expected=%d percent=%d%%", station, r.Count, r.Expected, r.Percent)
				}
			}
		}
	}

	for _, f := range pkt.Frames {
		p.processFrame(ctx, pkt, f)
	}
}

func (p *Pipeline) processFrame(ctx context.Context, pkt *frame.Packet, f frame.Frame) {
	switch f.Type {
	case frame.TypeAPDU:
		_ = diag.Guard(p.diagLog, "apdu", diag.APDU, f.Payload, func() error {
			return p.processAPDU(ctx, pkt, f.Payload)
		})
	case frame.TypeCRL:
		_ = diag.Guard(p.diagLog, "crl", diag.Payload, f.Payload, func() error {
			return p.processCRL(ctx, pkt, f.Payload)
		})
	case frame.TypeServiceStatus:
		_ = diag.Guard(p.diagLog, "service_status", diag.Payload, f.Payload, func() error {
			return p.processServiceStatus(ctx, pkt, f.Payload)
		})
	}
}

func (p *Pipeline) processAPDU(ctx context.Context, pkt *frame.Packet, payload []byte) error {
	ctx, span := tracer.Start(ctx, "apdu")
	defer span.End()

	a, err := apdu.Decode(payload, p.cfg.BlockSUAMessages)
	if err != nil {
		return err
	}
	if a == nil {
		return nil // SUA blocked by config
	}

	switch a.Kind {
	case apdu.KindSegment:
		return p.processSegment(ctx, pkt, a)
	case apdu.KindTWGO:
		return p.processTWGO(ctx, pkt, a.Header, a.TWGO)
	case apdu.KindGlobalBlock:
		return p.processGlobalBlock(ctx, pkt, a)
	case apdu.KindDLACText:
		rec, err := normalize.DLACText(a.DLACText, a.Header, pkt.ReceptionTime, p.cfg)
		if err != nil {
			return err
		}
		return p.admitNormalized(ctx, rec, pkt, payload)
	}
	return nil
}

func (p *Pipeline) processSegment(ctx context.Context, pkt *frame.Packet, a *apdu.APDU) error {
	ctx, span := tracer.Start(ctx, "reconstruct")
	defer span.End()

	seg := reconstruct.Segment{
		ProductID:         a.Header.ProductID,
		ProductFileID:     a.Header.ProductFileID,
		ProductFileLength: a.Header.ProductFileLength,
		ApduNumber:        a.Header.ApduNumber,
		PayloadHex:        a.SegmentHex,
	}
	rec, err := p.desegmenter.Process(seg, pkt.ReceptionTime)
	if err != nil {
		return fmt.Errorf("pipeline: desegment: %w", err)
	}
	if rec == nil {
		return nil // message still incomplete
	}
	return p.processTWGO(ctx, pkt, a.Header, rec)
}

func (p *Pipeline) processTWGO(ctx context.Context, pkt *frame.Packet, hdr apdu.Header, rec *twgo.Record) error {
	matched, err := p.twgoMatcher.Process(hdr.ProductID, rec.Location, hdr.Month, rec, pkt.ReceptionTime)
	if err != nil {
		return fmt.Errorf("pipeline: twgo match: %w", err)
	}
	if matched == nil {
		return nil // waiting on the other half
	}

	ctx, span := tracer.Start(ctx, "normalize")
	defer span.End()

	out, err := normalize.Twgo(*matched, hdr, pkt.Station, pkt.ReceptionTime, p.cfg)
	if err != nil {
		return err
	}
	return p.admitNormalized(ctx, out, pkt, nil)
}

func (p *Pipeline) processGlobalBlock(ctx context.Context, pkt *frame.Packet, a *apdu.APDU) error {
	ctx, span := tracer.Start(ctx, "normalize")
	defer span.End()

	blocks, err := normalize.GlobalBlock(a, pkt.ReceptionTime, p.cfg)
	if err != nil {
		return err
	}
	for _, blk := range blocks {
		if err := p.admitBlock(ctx, blk, pkt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processCRL(ctx context.Context, pkt *frame.Packet, payload []byte) error {
	f, err := crl.DecodeCrlFrame(payload)
	if err != nil {
		return err
	}
	msg, err := crl.MsgCrl(f, pkt.Station, pkt.ReceptionTime)
	if err != nil {
		return err
	}
	return p.admitNormalized(ctx, msg, pkt, payload)
}

func (p *Pipeline) processServiceStatus(ctx context.Context, pkt *frame.Packet, payload []byte) error {
	f, err := crl.DecodeServiceStatusFrame(payload)
	if err != nil {
		return err
	}
	msg := crl.MsgServiceStatus(f, pkt.Station, pkt.ReceptionTime, p.cfg)
	return p.admitNormalized(ctx, msg, pkt, payload)
}

// admitNormalized runs one normalized text/geometry record through
// the archive, dedup, and harvest stages, in that order (archiving
// happens before dedup/harvest can discard it, per the archive
// package's own doc comment).
func (p *Pipeline) admitNormalized(ctx context.Context, rec any, pkt *frame.Packet, rawPayload []byte) error {
	if rec == nil {
		return nil
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pipeline: marshal normalized record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("pipeline: inspect normalized record: %w", err)
	}
	msgType, _ := doc["type"].(string)
	uniqueName, _ := doc["unique_name"].(string)

	if p.archiver != nil {
		if err := p.archiver.Insert(ctx, archive.Record{
			ReceivedAt: pkt.ReceptionTime,
			Type:       msgType,
			UniqueName: uniqueName,
			Station:    pkt.Station,
			RawAPDU:    rawPayload,
			Normalized: rec,
		}); err != nil {
			return fmt.Errorf("pipeline: archive: %w", err)
		}
	}

	if !dedup.Bypass(msgType, p.cfg.PirepStoreDedup) {
		if !p.dedupCache.Admit(raw, pkt.ReceptionTime) {
			return nil // unchanged retransmission, suppressed
		}
	}

	ctx, span := tracer.Start(ctx, "harvest")
	defer span.End()

	if _, err := p.harvester.Admit(ctx, rec, pkt.ReceptionTime); err != nil {
		return fmt.Errorf("pipeline: harvest admit: %w", err)
	}

	if notam, ok := rec.(*normalize.Notam); ok {
		hasContents := notam.Contents != ""
		hasGeometry := len(notam.Geometry) > 0
		if err := p.harvester.UpdateCRLForNotam(ctx, notam.Subtype, notam.UniqueName, notam.Station, hasContents, hasGeometry); err != nil {
			return fmt.Errorf("pipeline: update crl: %w", err)
		}
	}
	return nil
}

// admitBlock runs one decoded image-tile block through the dedup
// cache (imagery always goes through it, per the dedup contract) and
// then the harvester's image lifecycle.
func (p *Pipeline) admitBlock(ctx context.Context, blk *normalize.Block, pkt *frame.Packet) error {
	raw, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("pipeline: marshal block: %w", err)
	}

	if p.archiver != nil {
		if err := p.archiver.Insert(ctx, archive.Record{
			ReceivedAt: pkt.ReceptionTime,
			Type:       blk.Type,
			UniqueName: blk.UniqueName,
			Station:    pkt.Station,
			Normalized: blk,
		}); err != nil {
			return fmt.Errorf("pipeline: archive block: %w", err)
		}
	}

	if !p.dedupCache.Admit(raw, pkt.ReceptionTime) {
		return nil
	}

	ctx, span := tracer.Start(ctx, "harvest")
	defer span.End()
	p.harvester.AdmitBlock(blk, pkt.ReceptionTime)
	return nil
}

// maintenanceLoop runs the periodic sweeps on cfg.MaintInterval: store
// expiration, image lifecycle advancement, and reconstruction table
// eviction. The dedup cache is not swept here; it expunges itself
// during Admit.
func (p *Pipeline) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.MaintInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runMaintenance(ctx)
		}
	}
}

func (p *Pipeline) runMaintenance(ctx context.Context) {
	now := time.Now().UTC()

	_ = diag.Guard(p.diagLog, "maintenance", diag.Store, nil, func() error {
		_, err := p.harvester.ExpireSweep(ctx, now)
		return err
	})
	_ = diag.Guard(p.diagLog, "maintenance", diag.Store, nil, func() error {
		return p.harvester.PeriodicImageUpdate(ctx, now)
	})

	p.desegmenter.Expunge(now)
	p.twgoMatcher.Expunge(now)
}
