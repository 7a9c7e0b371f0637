// Command fisbstage runs the decode chain up through one named stage
// and prints what's visible at that point, for manual inspection of a
// capture file one layer at a time.
//
// Usage:
//
//	fisbstage <stage> [-input FILE] [-output FILE] [-pretty] [-stats]
//
// Stages:
//
//	frame        parsed ground-uplink packets
//	apdu         decoded APDU payloads (text, TWGO, global-block, or awaiting reassembly)
//	reconstruct  TWGO records once desegmentation and text/graphic matching complete
//	normalize    final normalized records, before dedup/harvest
//	dedup        normalized records surviving the digest cache, duplicates suppressed
//	harvest      the final harvested store contents after every input line is admitted
//
// Input is newline-delimited raw ground-uplink records (frame.ParseLine's
// input format), the same lines fisbpipe reads from stdin or NATS.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/config"
	"fisb/internal/crl"
	"fisb/internal/dedup"
	"fisb/internal/frame"
	"fisb/internal/harvest"
	"fisb/internal/normalize"
	"fisb/internal/reconstruct"
)

type stats struct {
	lines   int
	bytes   int64
	decoded int
	emitted int
	start   time.Time
}

func (s *stats) report(w io.Writer) {
	elapsed := time.Since(s.start)
	fmt.Fprintf(w, "stats: lines=%s decoded=%s emitted=%s bytes=%s elapsed=%s\n",
		humanize.Comma(int64(s.lines)), humanize.Comma(int64(s.decoded)), humanize.Comma(int64(s.emitted)),
		humanize.Bytes(uint64(s.bytes)), elapsed.Round(time.Millisecond))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "fisbstage <stage> - commands:")
	fmt.Fprintln(w, "  frame | apdu | reconstruct | normalize | dedup | harvest")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fisbstage <stage> [-input FILE] [-output FILE] [-pretty] [-stats]")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	stage := strings.ToLower(os.Args[1])

	fs := flag.NewFlagSet(stage, flag.ExitOnError)
	inPath := fs.String("input", "", "Input file of raw ground-uplink lines (default: stdin)")
	outPath := fs.String("output", "", "Output file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print a humanized summary to stderr")
	calculateRSR := fs.Bool("rsr", false, "Request detailed decode fields (UTC coupling, slot, MSO, TIS-B site) in parsed packets")
	_ = fs.Parse(os.Args[2:])

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fisbstage: opening input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}
	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fisbstage: creating output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	if *pretty {
		enc.SetIndent("", "  ")
	}

	st := &stats{start: time.Now()}
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	run := newStageRunner(stage)
	if run == nil {
		fmt.Fprintf(os.Stderr, "fisbstage: unknown stage %q\n\n", stage)
		usage(os.Stderr)
		os.Exit(2)
	}

	for scanner.Scan() {
		line := scanner.Text()
		st.lines++
		st.bytes += int64(len(line))
		if line == "" {
			continue
		}

		pkt, err := frame.ParseLine(line, *calculateRSR)
		if err != nil {
			if err != frame.ErrSkip {
				fmt.Fprintf(os.Stderr, "fisbstage: frame decode: %v\n", err)
			}
			continue
		}
		st.decoded++

		for _, out := range run.process(pkt) {
			if err := enc.Encode(out); err != nil {
				fmt.Fprintf(os.Stderr, "fisbstage: encode: %v\n", err)
				continue
			}
			st.emitted++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "fisbstage: scan: %v\n", err)
		os.Exit(1)
	}

	if final := run.finish(); final != nil {
		if err := enc.Encode(final); err != nil {
			fmt.Fprintf(os.Stderr, "fisbstage: encode final state: %v\n", err)
		}
	}

	if *showStats {
		st.report(os.Stderr)
	}
}

// stageRunner walks every inner frame of each decoded packet and
// yields the records a given stage would produce. finish returns a
// final summary value for stages (like harvest) whose output is a
// cumulative store rather than one record per input line.
type stageRunner interface {
	process(pkt *frame.Packet) []any
	finish() any
}

func newStageRunner(stage string) stageRunner {
	switch stage {
	case "frame":
		return &frameStage{}
	case "apdu":
		return &apduStage{}
	case "reconstruct":
		return &reconstructStage{
			desegmenter: reconstruct.NewDesegmenter(config.Default().SegmentExpire, nil),
			twgoMatcher: reconstruct.NewTwgoMatcher(config.Default().TwgoExpire, nil),
		}
	case "normalize":
		return &normalizeStage{
			cfg:         config.Default(),
			desegmenter: reconstruct.NewDesegmenter(config.Default().SegmentExpire, nil),
			twgoMatcher: reconstruct.NewTwgoMatcher(config.Default().TwgoExpire, nil),
		}
	case "dedup":
		cfg := config.Default()
		return &dedupStage{
			cfg:         cfg,
			desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, nil),
			twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil),
			cache:       dedup.New(cfg.DedupExpireMsgTime, cfg.DedupExpungeInterval),
		}
	case "harvest":
		cfg := config.Default()
		mem := newMemStore()
		return &harvestStage{
			cfg:         cfg,
			desegmenter: reconstruct.NewDesegmenter(cfg.SegmentExpire, nil),
			twgoMatcher: reconstruct.NewTwgoMatcher(cfg.TwgoExpire, nil),
			cache:       dedup.New(cfg.DedupExpireMsgTime, cfg.DedupExpungeInterval),
			harvester:   harvest.New(mem, nullRenderer{}, cfg),
			store:       mem,
		}
	default:
		return nil
	}
}

type frameStage struct{}

func (s *frameStage) process(pkt *frame.Packet) []any { return []any{pkt} }
func (s *frameStage) finish() any                     { return nil }

type apduStage struct{}

func (s *apduStage) process(pkt *frame.Packet) []any {
	var out []any
	for _, f := range pkt.Frames {
		if f.Type != frame.TypeAPDU {
			continue
		}
		a, err := apdu.Decode(f.Payload, false)
		if err != nil || a == nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
func (s *apduStage) finish() any { return nil }

// reconstructStage runs segments through the desegmenter and TWGO
// halves through the matcher, emitting only completed matches.
type reconstructStage struct {
	desegmenter *reconstruct.Desegmenter
	twgoMatcher *reconstruct.TwgoMatcher
}

func (s *reconstructStage) process(pkt *frame.Packet) []any {
	var out []any
	for _, f := range pkt.Frames {
		if f.Type != frame.TypeAPDU {
			continue
		}
		a, err := apdu.Decode(f.Payload, false)
		if err != nil || a == nil {
			continue
		}

		var rec *twgo.Record
		switch a.Kind {
		case apdu.KindSegment:
			seg := reconstruct.Segment{
				ProductID:         a.Header.ProductID,
				ProductFileID:     a.Header.ProductFileID,
				ProductFileLength: a.Header.ProductFileLength,
				ApduNumber:        a.Header.ApduNumber,
				PayloadHex:        a.SegmentHex,
			}
			rec, err = s.desegmenter.Process(seg, pkt.ReceptionTime)
			if err != nil || rec == nil {
				continue
			}
		case apdu.KindTWGO:
			rec = a.TWGO
		default:
			continue
		}

		matched, err := s.twgoMatcher.Process(a.Header.ProductID, rec.Location, a.Header.Month, rec, pkt.ReceptionTime)
		if err != nil || matched == nil {
			continue
		}
		out = append(out, matched)
	}
	return out
}
func (s *reconstructStage) finish() any { return nil }

type normalizeStage struct {
	cfg         config.Config
	desegmenter *reconstruct.Desegmenter
	twgoMatcher *reconstruct.TwgoMatcher
}

func (s *normalizeStage) process(pkt *frame.Packet) []any {
	var out []any
	for _, f := range pkt.Frames {
		if rec, ok := normalizeFrame(s.cfg, s.desegmenter, s.twgoMatcher, pkt, f); ok {
			out = append(out, rec)
		}
	}
	return out
}
func (s *normalizeStage) finish() any { return nil }

// normalizeFrame runs one inner frame all the way through reconstruct
// and normalize, shared by the normalize/dedup/harvest stages.
func normalizeFrame(cfg config.Config, desegmenter *reconstruct.Desegmenter, matcher *reconstruct.TwgoMatcher, pkt *frame.Packet, f frame.Frame) (any, bool) {
	switch f.Type {
	case frame.TypeAPDU:
		a, err := apdu.Decode(f.Payload, cfg.BlockSUAMessages)
		if err != nil || a == nil {
			return nil, false
		}
		switch a.Kind {
		case apdu.KindDLACText:
			rec, err := normalize.DLACText(a.DLACText, a.Header, pkt.ReceptionTime, cfg)
			if err != nil || rec == nil {
				return nil, false
			}
			return rec, true
		case apdu.KindGlobalBlock:
			blocks, err := normalize.GlobalBlock(a, pkt.ReceptionTime, cfg)
			if err != nil || len(blocks) == 0 {
				return nil, false
			}
			return blocks[0], true
		case apdu.KindSegment, apdu.KindTWGO:
			var rec *twgo.Record
			if a.Kind == apdu.KindSegment {
				seg := reconstruct.Segment{
					ProductID:         a.Header.ProductID,
					ProductFileID:     a.Header.ProductFileID,
					ProductFileLength: a.Header.ProductFileLength,
					ApduNumber:        a.Header.ApduNumber,
					PayloadHex:        a.SegmentHex,
				}
				var err error
				rec, err = desegmenter.Process(seg, pkt.ReceptionTime)
				if err != nil || rec == nil {
					return nil, false
				}
			} else {
				rec = a.TWGO
			}
			matched, err := matcher.Process(a.Header.ProductID, rec.Location, a.Header.Month, rec, pkt.ReceptionTime)
			if err != nil || matched == nil {
				return nil, false
			}
			out, err := normalize.Twgo(*matched, a.Header, pkt.Station, pkt.ReceptionTime, cfg)
			if err != nil || out == nil {
				return nil, false
			}
			return out, true
		}
	case frame.TypeCRL:
		fr, err := crl.DecodeCrlFrame(f.Payload)
		if err != nil {
			return nil, false
		}
		msg, err := crl.MsgCrl(fr, pkt.Station, pkt.ReceptionTime)
		if err != nil {
			return nil, false
		}
		return msg, true
	case frame.TypeServiceStatus:
		fr, err := crl.DecodeServiceStatusFrame(f.Payload)
		if err != nil {
			return nil, false
		}
		return crl.MsgServiceStatus(fr, pkt.Station, pkt.ReceptionTime, cfg), true
	}
	return nil, false
}

type dedupStage struct {
	cfg         config.Config
	desegmenter *reconstruct.Desegmenter
	twgoMatcher *reconstruct.TwgoMatcher
	cache       *dedup.Cache
}

func (s *dedupStage) process(pkt *frame.Packet) []any {
	var out []any
	for _, f := range pkt.Frames {
		rec, ok := normalizeFrame(s.cfg, s.desegmenter, s.twgoMatcher, pkt, f)
		if !ok {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		var doc map[string]any
		_ = json.Unmarshal(raw, &doc)
		msgType, _ := doc["type"].(string)

		if !dedup.Bypass(msgType, s.cfg.PirepStoreDedup) {
			if !s.cache.Admit(raw, pkt.ReceptionTime) {
				continue // suppressed: unchanged retransmission
			}
		}
		out = append(out, rec)
	}
	return out
}
func (s *dedupStage) finish() any { return nil }

type harvestStage struct {
	cfg         config.Config
	desegmenter *reconstruct.Desegmenter
	twgoMatcher *reconstruct.TwgoMatcher
	cache       *dedup.Cache
	harvester   *harvest.Harvester
	store       *memStore
}

func (s *harvestStage) process(pkt *frame.Packet) []any {
	for _, f := range pkt.Frames {
		rec, ok := normalizeFrame(s.cfg, s.desegmenter, s.twgoMatcher, pkt, f)
		if !ok {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		var doc map[string]any
		_ = json.Unmarshal(raw, &doc)
		msgType, _ := doc["type"].(string)

		if !dedup.Bypass(msgType, s.cfg.PirepStoreDedup) {
			if !s.cache.Admit(raw, pkt.ReceptionTime) {
				continue
			}
		}
		_, _ = s.harvester.Admit(context.Background(), rec, pkt.ReceptionTime)
	}
	return nil
}

func (s *harvestStage) finish() any { return s.store.all() }

type nullRenderer struct{}

func (nullRenderer) Render(ctx context.Context, product string, bins map[int]harvest.BinEntry, scaleFactor int, mapFcn string) (harvest.BBox, error) {
	return harvest.BBox{}, nil
}

// memStore is an in-process harvest.Store backing the harvest stage:
// the CLI has no database to upsert into, so it keeps the final state
// in memory and dumps it at EOF.
type memStore struct {
	docs map[string]map[string]any
}

func newMemStore() *memStore { return &memStore{docs: make(map[string]map[string]any)} }

func (m *memStore) key(collection, key string) string { return collection + "|" + key }

func (m *memStore) Upsert(ctx context.Context, collection, key string, doc map[string]any) error {
	m.docs[m.key(collection, key)] = doc
	return nil
}

func (m *memStore) Delete(ctx context.Context, collection, key string) error {
	delete(m.docs, m.key(collection, key))
	return nil
}

func (m *memStore) FindOne(ctx context.Context, collection, key string) (map[string]any, bool, error) {
	d, ok := m.docs[m.key(collection, key)]
	return d, ok, nil
}

func (m *memStore) FindMany(ctx context.Context, collection string, filter map[string]any) ([]map[string]any, error) {
	prefix := collection + "|"
	var out []map[string]any
	for k, d := range m.docs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) DeleteMany(ctx context.Context, collection string, filter map[string]any) (int, error) {
	return 0, nil
}

func (m *memStore) all() map[string]map[string]any { return m.docs }
