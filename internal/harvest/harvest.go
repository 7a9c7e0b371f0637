// Package harvest is the persistence and maintenance stage: it takes
// normalized records and upserts them into a keyed store, skipping
// unchanged retransmissions by content digest, annotates CRL
// completeness, sweeps expired records, and drives the image-tile
// lifecycle for block (imagery) products.
//
// Grounded on db/harvest/MsgBase.py (digest-gated upsert, geojson
// conversion, CRL annotation), db/harvest/harvest.py (dispatch and
// periodic maintenance), db/harvest/MsgNOTAM.py and db/harvest/MsgCRL.py
// (the CRL-table wiring), and db/harvest/MsgBLOCK.py (image lifecycle).
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fisb/internal/config"
	"fisb/internal/dedup"
)

// Store is the keyed document store the harvester persists into.
// Consumed, not implemented, here; see internal/store for a Postgres
// backing.
type Store interface {
	Upsert(ctx context.Context, collection, key string, doc map[string]any) error
	Delete(ctx context.Context, collection, key string) error
	FindOne(ctx context.Context, collection, key string) (map[string]any, bool, error)
	FindMany(ctx context.Context, collection string, filter map[string]any) ([]map[string]any, error)
	DeleteMany(ctx context.Context, collection string, filter map[string]any) (int, error)
}

// msgCollection is the single keyed collection every record, CRL entry
// and image record lives in, matching the persisted state layout's
// MSG collection.
const msgCollection = "MSG"

// Harvester holds the mutable state the maintenance stage needs
// between calls: one imageState per block product type.
type Harvester struct {
	store    Store
	renderer Renderer
	cfg      config.Config

	images map[string]*imageState
}

// New returns a Harvester backed by store and renderer.
func New(store Store, renderer Renderer, cfg config.Config) *Harvester {
	return &Harvester{
		store:    store,
		renderer: renderer,
		cfg:      cfg,
		images:   make(map[string]*imageState),
	}
}

// docKey builds the MSG collection's primary key: <TYPE>-<unique_name>.
func docKey(msgType, uniqueName string) string {
	return msgType + "-" + uniqueName
}

// toDoc marshals any normalized record (anything with type/unique_name/
// expiration_time JSON fields) into the generic document shape the
// store deals in, mirroring the way the original treats every message
// as a plain dict from the moment it leaves level 2. Every top-level
// "*_time" field, and any "start_time"/"stop_time" nested under
// "geometry" entries, is parsed back from its RFC 3339 wire form into
// a time.Time so the store binds it as a real timestamp rather than a
// string.
//
// Grounded on harvest.py's convertDictISO, called before storage for
// exactly the same reason.
func toDoc(rec any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("harvest: marshal record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("harvest: unmarshal record: %w", err)
	}
	convertDictISO(doc)
	return doc, nil
}

func convertDictISO(doc map[string]any) {
	for k, v := range doc {
		if !strings.HasSuffix(k, "_time") {
			continue
		}
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				doc[k] = t
			}
		}
	}

	geometry, ok := doc["geometry"].([]any)
	if !ok {
		return
	}
	for _, g := range geometry {
		entry, ok := g.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range []string{"start_time", "stop_time"} {
			if s, ok := entry[k].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					entry[k] = t
				}
			}
		}
	}
}

// digestOf computes the content digest a record is deduplicated on.
// expiration_time is excluded: a renewed retransmission of otherwise
// identical content carries a later expiration and must not be treated
// as a changed record.
func digestOf(doc map[string]any) (string, error) {
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "expiration_time" {
			continue
		}
		cp[k] = v
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("harvest: marshal digest source: %w", err)
	}
	return dedup.Digest(raw), nil
}

// Admit is the harvester's entry point for every non-block normalized
// record: NOTAM, AIRMET/SIGMET/WST/CWA, G-AIRMET, SUA, METAR/TAF/
// WINDS/PIREP, CRL, SERVICE_STATUS, CANCEL_*, and FIS_B_UNAVAILABLE.
// It reports whether the record was stored (false means an identical
// copy was already on file and nothing changed).
//
// Grounded on MsgBase.checkThenAddIdDigest.
func (h *Harvester) Admit(ctx context.Context, rec any, now time.Time) (bool, error) {
	doc, err := toDoc(rec)
	if err != nil {
		return false, err
	}

	msgType, _ := doc["type"].(string)
	uniqueName, _ := doc["unique_name"].(string)
	if msgType == "" || uniqueName == "" {
		return false, fmt.Errorf("harvest: record missing type/unique_name: %+v", doc)
	}
	key := docKey(msgType, uniqueName)

	digest, err := digestOf(doc)
	if err != nil {
		return false, err
	}

	old, found, err := h.store.FindOne(ctx, msgCollection, key)
	if err != nil {
		return false, err
	}
	if found {
		if oldDigest, ok := old["digest"].(string); ok && oldDigest == digest {
			return false, nil
		}
	}

	doc["digest"] = digest
	doc["insert_time"] = now

	geometryToGeojson(doc)

	if err := h.store.Upsert(ctx, msgCollection, key, doc); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireSweep deletes every stored record whose expiration_time has
// passed, when the configuration enables it.
func (h *Harvester) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	if !h.cfg.ExpireMessages {
		return 0, nil
	}
	return h.store.DeleteMany(ctx, msgCollection, map[string]any{"expiration_time_lte": now})
}
