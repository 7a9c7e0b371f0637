package harvest

import (
	"context"
	"time"
)

// CRLStatus summarizes one station/product CRL record's completeness,
// the read-only view internal/review exposes for operational
// visibility.
type CRLStatus struct {
	ProductID       int
	Station         string
	TotalReports    int
	CompleteReports int
}

// CRLStatuses reads every CRL document currently in the store and
// reports how many of its reports carry the completeness marker.
//
// Grounded on MsgCrl's "*"-suffix convention read back out, the same
// way updateCRL writes it.
func (h *Harvester) CRLStatuses(ctx context.Context) ([]CRLStatus, error) {
	docs, err := h.store.FindMany(ctx, msgCollection, nil)
	if err != nil {
		return nil, err
	}

	var out []CRLStatus
	for _, doc := range docs {
		if t, _ := doc["type"].(string); t != "CRL" {
			continue
		}

		productID, _ := doc["product_id"].(float64)
		station, _ := doc["station"].(string)
		reportsAny, _ := doc["reports"].([]any)

		status := CRLStatus{ProductID: int(productID), Station: station, TotalReports: len(reportsAny)}
		for _, r := range reportsAny {
			report, _ := r.(string)
			if len(report) > 0 && report[len(report)-1] == '*' {
				status.CompleteReports++
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// ImageStatus summarizes one image product's current tile bookkeeping.
type ImageStatus struct {
	Product          string
	HasAnyData       bool
	BinCount         int
	OldestOfficialTs time.Time
	NewestOfficialTs time.Time
	LastChangedTs    time.Time
	LastRenderedTs   time.Time
}

// ImageStatuses snapshots the live imageState bookkeeping for every
// tracked block product, for operational visibility into the image
// tile lifecycle without exposing the internal imageState type itself.
func (h *Harvester) ImageStatuses() []ImageStatus {
	out := make([]ImageStatus, 0, len(h.images))
	for product, st := range h.images {
		out = append(out, ImageStatus{
			Product:          product,
			HasAnyData:       st.hasAnyData,
			BinCount:         len(st.bins),
			OldestOfficialTs: st.oldestOfficialTs,
			NewestOfficialTs: st.newestOfficialTs,
			LastChangedTs:    st.lastChangedTs,
			LastRenderedTs:   st.fileCreationTs,
		})
	}
	return out
}
