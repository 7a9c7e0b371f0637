package harvest

import (
	"context"
	"time"

	"fisb/internal/config"
	"fisb/internal/normalize"
)

// Renderer produces one or more image tile files from a product's
// current bin data and reports the bounding box the tiles cover.
// mapFcn names the per-product colour palette / bit-unpacking
// function to use (e.g. for the icing SLD/SEV/PRB triple or the
// lightning ALL/POS pair); rendering itself (pixel output) is out of
// scope here.
type Renderer interface {
	Render(ctx context.Context, product string, bins map[int]BinEntry, scaleFactor int, mapFcn string) (BBox, error)
}

// BBox is a Leaflet-style [[north-west], [south-east]] bounding box,
// each corner [latitude, longitude].
type BBox [2][2]float64

// BinEntry is one alternate-block-number's worth of image data: the
// raw bin bytes and the official (observation or valid) time they
// were received with.
type BinEntry struct {
	Bins string
	Time time.Time
}

// imageProductParams are the per-product constants MsgBLOCK.py's
// createNoDataDict hard-codes: how long a latency window this product
// allows across bins, how long an image survives with no new data,
// and which of observation_time/valid_time it reports under.
type imageProductParams struct {
	revertToNoData time.Duration
	maxLatency     time.Duration
	obsOrValid     string // "observation_time" or "valid_time"
	mapFcn         string
	scaleFactor    int
}

func imageParamsFor(product string, cfg config.Config) imageProductParams {
	switch product {
	case "NEXRAD_REGIONAL":
		return imageProductParams{cfg.RegionalNexradExpire, 10 * time.Minute, "observation_time", "radar", 0}
	case "NEXRAD_CONUS":
		return imageProductParams{cfg.ConusNexradExpire, 10 * time.Minute, "observation_time", "radar", 1}
	case "LIGHTNING":
		return imageProductParams{cfg.LightningExpire, 10 * time.Minute, "observation_time", "lightning", 0}
	case "CLOUD_TOPS":
		return imageProductParams{cfg.CloudTopsExpire, 0, "valid_time", "cloud_tops", 0}
	default:
		// TURBULENCE_NNNNN and ICING_NNNNN.
		params := imageProductParams{obsOrValid: "valid_time", scaleFactor: 1}
		switch {
		case len(product) >= 11 && product[:11] == "TURBULENCE_":
			params.revertToNoData = cfg.TurbulenceExpire
			params.mapFcn = "turbulence"
		default:
			params.revertToNoData = cfg.IcingExpire
			params.mapFcn = "icing"
		}
		return params
	}
}

// imageState is the live per-product bookkeeping MsgBLOCK.py keeps in
// imageDict: the current set of bins plus the timestamps driving
// latency handling, expiration, and quiet-period render gating.
type imageState struct {
	params imageProductParams

	hasAnyData       bool
	bins             map[int]BinEntry
	newestOfficialTs time.Time
	oldestOfficialTs time.Time
	lastChangedTs    time.Time
	fileCreationTs   time.Time // zero until the first render
}

func newImageState(product string, cfg config.Config) *imageState {
	return &imageState{
		params: imageParamsFor(product, cfg),
		bins:   make(map[int]BinEntry),
	}
}

func (h *Harvester) imageStateFor(product string) *imageState {
	st, ok := h.images[product]
	if !ok {
		st = newImageState(product, h.cfg)
		h.images[product] = st
	}
	return st
}

// AdmitBlock records one decoded image tile, ignoring an unchanged
// retransmission of the same bin at the same official time. Starting
// a new image (official time newer than anything seen so far) wipes
// all existing bins for products that disallow latency, matching
// MsgBLOCK.processMessage.
func (h *Harvester) AdmitBlock(blk *normalize.Block, now time.Time) {
	if !h.cfg.ProcessImages {
		return
	}

	st := h.imageStateFor(blk.Type)

	officialTime := blk.ObservationTime
	if officialTime == nil {
		officialTime = blk.ValidTime
	}
	if officialTime == nil {
		return
	}

	if existing, ok := st.bins[blk.AltBlockNumber]; ok {
		if existing.Time.Equal(*officialTime) && existing.Bins == blk.Bins {
			return
		}
	}

	if officialTime.After(st.newestOfficialTs) {
		st.newestOfficialTs = *officialTime
		if st.params.maxLatency == 0 {
			st.bins = make(map[int]BinEntry)
		}
	}

	st.lastChangedTs = now
	st.bins[blk.AltBlockNumber] = BinEntry{Bins: blk.Bins, Time: *officialTime}
	st.hasAnyData = true
}

// PeriodicImageUpdate runs one maintenance pass over every tracked
// image product: latency and no-data expiration, then (after a quiet
// period with no new data) a render and an IMAGE record upsert.
//
// Grounded on MsgBLOCK.periodicUpdate and MsgBLOCK.createImageFile.
func (h *Harvester) PeriodicImageUpdate(ctx context.Context, now time.Time) error {
	if !h.cfg.ProcessImages {
		return nil
	}

	for product, st := range h.images {
		if !st.hasAnyData {
			continue
		}

		oldestActive := st.newestOfficialTs
		anyChanges := false

		for binNum, entry := range st.bins {
			toDelete := false

			if st.params.maxLatency > 0 {
				if st.newestOfficialTs.Sub(entry.Time) >= st.params.maxLatency {
					toDelete = true
				} else if entry.Time.Before(oldestActive) {
					oldestActive = entry.Time
				}
			}

			if now.Sub(entry.Time) >= st.params.revertToNoData {
				toDelete = true
			}

			if toDelete {
				delete(st.bins, binNum)
				anyChanges = true
			}
		}

		st.oldestOfficialTs = oldestActive
		if anyChanges {
			st.lastChangedTs = now
		}

		if len(st.bins) == 0 {
			if err := h.store.Delete(ctx, msgCollection, docKey("IMAGE", product)); err != nil {
				return err
			}
			h.images[product] = newImageState(product, h.cfg)
			continue
		}

		if err := h.maybeRenderImage(ctx, product, st, now); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harvester) maybeRenderImage(ctx context.Context, product string, st *imageState, now time.Time) error {
	quiet := h.cfg.QuietImageSeconds
	if quiet > 0 && now.Sub(st.lastChangedTs) < quiet {
		return nil
	}
	if st.fileCreationTs.After(st.lastChangedTs) {
		return nil
	}

	bbox, err := h.renderer.Render(ctx, product, st.bins, st.params.scaleFactor, st.params.mapFcn)
	if err != nil {
		return err
	}

	doc := map[string]any{
		"type":               "IMAGE",
		"unique_name":        product,
		st.params.obsOrValid: st.oldestOfficialTs,
		"bbox":               bbox,
		"insert_time":        now,
		"expiration_time":    st.oldestOfficialTs.Add(st.params.revertToNoData),
	}
	if err := h.store.Upsert(ctx, msgCollection, docKey("IMAGE", product), doc); err != nil {
		return err
	}
	st.fileCreationTs = now
	return nil
}
