// Package normalize turns decoded APDU/TWGO/CRL/service-status/block
// payloads into the typed outgoing records the store and dedup stages
// consume: date completion against the packet's reception instant,
// per-product-family field extraction, and geometry normalization via
// the fbtime and geom packages.
//
// Grounded on fisb/level2/msg413.py (METAR/TAF/WINDS/PIREP),
// fisb/level2/msg8_16_17.py (NOTAM family and FIS-B-unavailable),
// fisb/level2/msg11_12_15.py (AIRMET/SIGMET/WST/CWA),
// fisb/level2/msg13.py (SUA), fisb/level2/msg14.py (G-AIRMET),
// fisb/level2/msgBlock.py (imagery), fisb/level2/msgCrl.py, and
// fisb/level2/msgServiceStatus.py.
package normalize

import (
	"time"

	"fisb/internal/geom"
)

// Base carries the fields every normalized record shares. Embedding it
// in a family-specific struct flattens these into the outgoing JSON
// object alongside the family's own fields.
type Base struct {
	Type           string    `json:"type"`
	UniqueName     string    `json:"unique_name"`
	ExpirationTime time.Time `json:"expiration_time"`
}

// Altitude is one bound of a geometry item's vertical envelope.
type Altitude struct {
	Feet float64 `json:"feet"`
	Type string  `json:"type"` // "MSL" or "AGL"
}

// GeometryItem is the neutral geometry schema spec §4.4 calls for:
// one normalized shape plus whatever applicability/labeling fields the
// source graphic record carried.
type GeometryItem struct {
	Type string `json:"type"` // POLYGON, POLYLINE, CIRCLE, POINT

	AltitudeHigh *Altitude `json:"altitude_high,omitempty"`
	AltitudeLow  *Altitude `json:"altitude_low,omitempty"`

	Coordinates [][2]float64 `json:"coordinates,omitempty"` // POLYGON/POLYLINE ring, or single-element POINT
	Center      *[2]float64  `json:"center,omitempty"`      // CIRCLE only
	RadiusNM    float64      `json:"radius_nm,omitempty"`

	StartTime       *time.Time `json:"start_time,omitempty"`
	StopTime        *time.Time `json:"stop_time,omitempty"`
	StartHourMinute string     `json:"start_hour_minute,omitempty"`
	StopHourMinute  string     `json:"stop_hour_minute,omitempty"`

	Cancelled  bool     `json:"cancelled,omitempty"`
	Element    string   `json:"element,omitempty"`
	AirportID  string   `json:"airport_id,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// geometryItems converts the internal geom.Shape list produced by
// geom.Process into the neutral wire schema.
func geometryItems(shapes []geom.Shape) []GeometryItem {
	items := make([]GeometryItem, 0, len(shapes))
	for _, s := range shapes {
		item := GeometryItem{
			Type:            s.Type.String(),
			AltitudeHigh:    &Altitude{Feet: s.AltitudeHigh, Type: s.AltitudeHighType.String()},
			AltitudeLow:     &Altitude{Feet: s.AltitudeLow, Type: s.AltitudeLowType.String()},
			StartTime:       s.StartTime,
			StopTime:        s.StopTime,
			StartHourMinute: s.StartHourMinute,
			StopHourMinute:  s.StopHourMinute,
			Cancelled:       s.Cancelled,
			Element:         s.Element,
			AirportID:       s.AirportID,
			Conditions:      s.Conditions,
		}

		switch s.Type {
		case geom.ShapePoint:
			item.Coordinates = [][2]float64{{s.Point[0], s.Point[1]}}
		case geom.ShapeCircle:
			c := [2]float64{s.Center[0], s.Center[1]}
			item.Center = &c
			item.RadiusNM = s.RadiusNM
		case geom.ShapePolygon, geom.ShapePolyline:
			coords := make([][2]float64, len(s.Ring))
			for i, p := range s.Ring {
				coords[i] = [2]float64{p[0], p[1]}
			}
			item.Coordinates = coords
		}

		items = append(items, item)
	}
	return items
}

// latestStopTime and allHaveStopTime jointly implement
// twgoExpirationFacts: the latest stop_time across every geometry item
// (or zero time if none have one), and whether every item carries one.
func latestStopTime(items []GeometryItem) (time.Time, bool) {
	var latest time.Time
	all := true
	any := false
	for _, it := range items {
		if it.StopTime == nil {
			all = false
			continue
		}
		any = true
		if it.StopTime.After(latest) {
			latest = *it.StopTime
		}
	}
	if !any {
		all = false
	}
	return latest, all
}

// twgoExpirationTime implements the original's twgoExpirationTime:
// prefer an explicit NOTAM expiration (the caller nils this out when
// the NOTAM's end-of-validity is the PERM sentinel), else the latest
// geometry stop_time if every item has one, else the configured
// default minimum applied to the receive time.
func twgoExpirationTime(geometry []GeometryItem, rcvd time.Time, notamExpire *time.Time, bypassSmart bool, defaultExpire time.Duration) time.Time {
	if !bypassSmart {
		if notamExpire != nil {
			return *notamExpire
		}
		if latest, all := latestStopTime(geometry); all {
			return latest
		}
	}
	return rcvd.Add(defaultExpire)
}
