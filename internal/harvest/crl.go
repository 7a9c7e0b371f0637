package harvest

import (
	"context"
	"strconv"
	"strings"
)

// crlTableForNotamSubtype maps a NOTAM subtype carrying its own CRL
// tracking to the CRL product id whose report list it appears in.
// TFR rides product 8's CRL, TRA product 16's, TMOA product 17's.
//
// Grounded on MsgNOTAM.py's processMessage.
func crlTableForNotamSubtype(subtype string) (productID int, ok bool) {
	switch subtype {
	case "TFR":
		return 8, true
	case "TRA":
		return 16, true
	case "TMOA":
		return 17, true
	default:
		return 0, false
	}
}

// UpdateCRLForNotam annotates the CRL tracking the given NOTAM
// subtype's reports, marking the entry for reportID complete once its
// required parts (text, or text and graphics) have been admitted. It
// is a no-op when immediate CRL update is disabled or the subtype has
// no associated CRL.
//
// hasContents and hasGeometry reflect whether the admitted NOTAM
// carried a text body and a geometry/geojson payload respectively.
func (h *Harvester) UpdateCRLForNotam(ctx context.Context, subtype, reportID, station string, hasContents, hasGeometry bool) error {
	if !h.cfg.ImmediateCRLUpdate {
		return nil
	}
	productID, ok := crlTableForNotamSubtype(subtype)
	if !ok {
		return nil
	}
	return h.updateCRL(ctx, productID, reportID, station, hasContents && hasGeometry)
}

// updateCRL finds the CRL tracking productID for station, strips any
// existing completeness marker from the report entry whose identity
// prefix matches id, and re-appends it when the entry's required parts
// are satisfied:
//   - a "/TG" (text-and-graphics) entry only when hasTextAndGraphics
//   - a "/TO" or "/GO" (single-part) entry unconditionally, since
//     reaching this call at all means that one required part arrived.
//
// Grounded on MsgBase.updateCRL.
func (h *Harvester) updateCRL(ctx context.Context, productID int, id, station string, hasTextAndGraphics bool) error {
	crlUniqueName := crlUniqueName(productID, station)
	key := docKey("CRL", crlUniqueName)

	crl, found, err := h.store.FindOne(ctx, msgCollection, key)
	if err != nil || !found {
		return err
	}

	reportsAny, _ := crl["reports"].([]any)
	reports := make([]string, len(reportsAny))
	for i, r := range reportsAny {
		reports[i], _ = r.(string)
	}

	for i, report := range reports {
		if !strings.HasPrefix(report, id) {
			continue
		}

		report = strings.TrimSuffix(report, "*")

		if strings.Contains(report, "/TG") {
			if hasTextAndGraphics {
				report += "*"
			}
		} else {
			report += "*"
		}

		reports[i] = report
		crl["reports"] = reports
		return h.store.Upsert(ctx, msgCollection, key, crl)
	}
	return nil
}

// crlUniqueName builds the unique_name a Crl record for productID/
// station carries, matching crl.MsgCrl.
func crlUniqueName(productID int, station string) string {
	return "CRL-" + strconv.Itoa(productID) + "-" + station
}
