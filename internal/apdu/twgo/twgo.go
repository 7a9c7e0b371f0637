// Package twgo decodes Text with Graphic Overlay APDU payloads: the
// product family carrying NOTAMs, AIRMETs, SIGMETs, CWAs, SUA, and
// G-AIRMET records, each as a mix of DLAC text records and/or
// polygon/circle/point/polyline graphic records.
//
// Grounded on fisb/level0/apdu_twgo.py.
package twgo

import (
	"fmt"

	"fisb/internal/apdu/dlac"
)

const (
	geo19Bits = 360.0 / (1 << 19)
	geo18Bits = 360.0 / (1 << 18)
)

// Record format values (d['record_format']).
const (
	FormatText    = 2
	FormatGraphic = 8
)

// TextRecord is one decoded DLAC text entry.
type TextRecord struct {
	TextRecordLength int
	ReportNumber     int
	ReportYear       int
	ReportStatus     int // 0 cancelled, 1 active
	Text             string
}

// Vertex is one decoded graphic vertex. For geometry options 3, 4, 9,
// 10, 11, 12 only Longitude/Latitude/Z are populated. For options 7
// and 8 (circular prisms) the Top/Bottom/Radius/Alpha fields are also
// populated.
type Vertex struct {
	Longitude, Latitude float64
	Z                   int // feet, options 3/4/9/10/11/12 only

	LongitudeTop, LatitudeTop float64
	ZBottom, ZTop             int
	RMajor, RMinor            float64 // nautical miles
	Alpha                     int     // hundreds of feet, options 7/8 only
}

// GraphicRecord is one decoded graphic overlay entry.
type GraphicRecord struct {
	OverlayRecordLength int
	ReportNumber        int
	ReportYear          int

	ApplicabilityStartYear int
	ApplicabilityEndYear   int
	OverlayRecordID        int

	LabelFlag  int
	ObjectLabel string

	ElementFlag int
	QualFlag    int
	ParamFlag   int

	ObjectElement int
	ObjectType    int
	ObjectStatus  int

	ObjectQualifiers []byte // G-AIRMET (productId 14) only, len 3 when present

	RecordApplicabilityOptions int
	DateTimeFormat             int
	OverlayGeometryOptions     int
	OverlayOperator            int

	VerticesCount int

	StartMonth, StartDay, StartHour, StartMinute int
	StopMonth, StopDay, StopHour, StopMinute      int

	Vertices []Vertex
}

// Record is a fully decoded TWGO payload.
type Record struct {
	RecordFormat         int
	Location             string
	RecordCount          int
	RecordReferencePoint int // 0x00 facility, 0xFF external; other values invalid

	TextRecords     []TextRecord
	GraphicRecords  []GraphicRecord
}

// Decode decodes a TWGO payload. ba[0] is the first byte of the TWGO
// header (immediately following the normalized APDU header).
func Decode(ba []byte, productID int) (*Record, error) {
	if len(ba) < 6 {
		return nil, fmt.Errorf("twgo: payload too short: %d bytes", len(ba))
	}

	r := &Record{
		RecordFormat:         int((ba[0] & 0xF0) >> 4),
		Location:             dlac.Decode(ba, 2, 3),
		RecordCount:          int((ba[1] & 0xF0) >> 4),
		RecordReferencePoint: int(ba[5]),
	}

	body := ba[6:]
	switch r.RecordFormat {
	case FormatText:
		recs, err := textRecords(body, r.RecordCount)
		if err != nil {
			return nil, err
		}
		r.TextRecords = recs
	case FormatGraphic:
		recs, err := graphicRecords(body, r.RecordCount, productID)
		if err != nil {
			return nil, err
		}
		r.GraphicRecords = recs
	default:
		return nil, fmt.Errorf("twgo: unknown record format %d", r.RecordFormat)
	}

	return r, nil
}

func textRecords(ba []byte, count int) ([]TextRecord, error) {
	out := make([]TextRecord, 0, count)
	ros := 0

	for i := 0; i < count; i++ {
		if ros+5 > len(ba) {
			return nil, fmt.Errorf("twgo: text record %d header overruns payload", i)
		}

		rec := TextRecord{}
		rec.TextRecordLength = (int(ba[ros]) << 8) | int(ba[ros+1])
		rec.ReportNumber = (int(ba[ros+2]) << 6) | (int(ba[ros+3]) >> 2)
		rec.ReportYear = ((int(ba[ros+3]) & 0x03) << 5) | ((int(ba[ros+4]) & 0xF8) >> 3)
		rec.ReportStatus = int((ba[ros+4] & 0x04) >> 2)

		if rec.ReportStatus == 1 {
			if ros+rec.TextRecordLength > len(ba) {
				return nil, fmt.Errorf("twgo: text record %d body overruns payload", i)
			}
			rec.Text = dlac.Decode(ba, ros+5, rec.TextRecordLength-5)
		}

		out = append(out, rec)
		ros += rec.TextRecordLength
	}

	return out, nil
}

func graphicRecords(ba []byte, count, productID int) ([]GraphicRecord, error) {
	out := make([]GraphicRecord, 0, count)
	os := 0

	for i := 0; i < count; i++ {
		ros := os
		if ros+5 > len(ba) {
			return nil, fmt.Errorf("twgo: graphic record %d header overruns payload", i)
		}

		g := GraphicRecord{}
		g.OverlayRecordLength = (int(ba[ros]) << 2) | ((int(ba[ros+1]) & 0xC0) >> 6)
		g.ReportNumber = ((int(ba[ros+1]) & 0x3F) << 8) | int(ba[ros+2])
		g.ReportYear = int(ba[ros+3]) >> 1
		g.ApplicabilityStartYear = ((int(ba[ros+3]) & 0x01) << 1) | ((int(ba[ros+4]) & 0x80) >> 7)
		g.ApplicabilityEndYear = (int(ba[ros+4]) & 0x60) >> 5
		g.OverlayRecordID = ((int(ba[ros+4]) & 0x1E) >> 1) + 1
		g.LabelFlag = int(ba[ros+4] & 0x01)

		ros = os + 5

		if g.LabelFlag == 0 {
			ros += 2
		} else {
			if ros+9 > len(ba) {
				return nil, fmt.Errorf("twgo: graphic record %d object label overruns payload", i)
			}
			g.ObjectLabel = dlac.Decode(ba, ros, 9)
			ros += 9
		}

		if ros >= len(ba) {
			return nil, fmt.Errorf("twgo: graphic record %d truncated before object element", i)
		}
		g.ElementFlag = int((ba[ros] & 0x80) >> 7)
		g.QualFlag = int((ba[ros] & 0x40) >> 6)
		g.ParamFlag = int((ba[ros] & 0x20) >> 5)
		g.ObjectElement = int(ba[ros] & 0x1F)
		ros++

		if ros >= len(ba) {
			return nil, fmt.Errorf("twgo: graphic record %d truncated before object type/status", i)
		}
		g.ObjectType = int((ba[ros] & 0xF0) >> 4)
		g.ObjectStatus = int(ba[ros] & 0x0F)
		ros++

		if productID == 14 && g.QualFlag == 1 {
			if ros+3 > len(ba) {
				return nil, fmt.Errorf("twgo: graphic record %d object qualifiers overrun payload", i)
			}
			g.ObjectQualifiers = []byte{ba[ros], ba[ros+1], ba[ros+2]}
			ros += 3
		}

		if g.ParamFlag == 1 {
			ros += 2
		}

		if ros >= len(ba) {
			return nil, fmt.Errorf("twgo: graphic record %d truncated before applicability options", i)
		}
		g.RecordApplicabilityOptions = int((ba[ros] & 0xC0) >> 6)
		g.DateTimeFormat = int((ba[ros] & 0x30) >> 4)
		g.OverlayGeometryOptions = int(ba[ros] & 0x0F)
		ros++

		if ros >= len(ba) {
			return nil, fmt.Errorf("twgo: graphic record %d truncated before overlay operator", i)
		}
		g.OverlayOperator = int((ba[ros] & 0xC0) >> 6)
		if g.OverlayOperator == 2 || g.OverlayOperator == 3 {
			return nil, fmt.Errorf("twgo: unimplemented overlay operator %d", g.OverlayOperator)
		}

		if g.OverlayGeometryOptions != 0 {
			g.VerticesCount = int(ba[ros]&0x3F) + 1
		}
		ros++

		if g.RecordApplicabilityOptions == 1 || g.RecordApplicabilityOptions == 3 {
			n, err := readDateTimeFields(ba, ros, g.DateTimeFormat, &g.StartMonth, &g.StartDay, &g.StartHour, &g.StartMinute)
			if err != nil {
				return nil, fmt.Errorf("twgo: graphic record %d start time: %w", i, err)
			}
			ros += n
		}

		if g.RecordApplicabilityOptions == 2 || g.RecordApplicabilityOptions == 3 {
			n, err := readDateTimeFields(ba, ros, g.DateTimeFormat, &g.StopMonth, &g.StopDay, &g.StopHour, &g.StopMinute)
			if err != nil {
				return nil, fmt.Errorf("twgo: graphic record %d stop time: %w", i, err)
			}
			ros += n
		}

		vertices := make([]Vertex, 0, g.VerticesCount)
		for v := 0; v < g.VerticesCount; v++ {
			switch g.OverlayGeometryOptions {
			case 7, 8:
				if ros+14 > len(ba) {
					return nil, fmt.Errorf("twgo: graphic record %d vertex %d overruns payload", i, v)
				}
				vertices = append(vertices, decode14ByteVertex(ba, ros))
				ros += 14
			case 3, 4, 9, 10, 11, 12:
				if ros+6 > len(ba) {
					return nil, fmt.Errorf("twgo: graphic record %d vertex %d overruns payload", i, v)
				}
				vertices = append(vertices, decode6ByteVertex(ba, ros))
				ros += 6
			default:
				return nil, fmt.Errorf("twgo: unknown vertex type %d", g.OverlayGeometryOptions)
			}
		}
		if g.VerticesCount > 0 {
			g.Vertices = vertices
		}

		os += g.OverlayRecordLength
		out = append(out, g)
	}

	return out, nil
}

// readDateTimeFields decodes one start-or-stop time block per
// dateTimeFormat (1: month/day/hour/minute, 2: day/hour/minute, 3:
// hour/minute) and returns the number of bytes consumed.
func readDateTimeFields(ba []byte, ros, dateTimeFormat int, month, day, hour, minute *int) (int, error) {
	var need int
	switch dateTimeFormat {
	case 1:
		need = 4
	case 2:
		need = 3
	case 3:
		need = 2
	default:
		return 0, nil
	}
	if ros+need > len(ba) {
		return 0, fmt.Errorf("date/time field overruns payload")
	}

	switch dateTimeFormat {
	case 1:
		*month = int(ba[ros])
		*day = int(ba[ros+1])
		*hour = int(ba[ros+2])
		*minute = int(ba[ros+3])
	case 2:
		*day = int(ba[ros])
		*hour = int(ba[ros+1])
		*minute = int(ba[ros+2])
	case 3:
		*hour = int(ba[ros])
		*minute = int(ba[ros+1])
	}
	return need, nil
}

func convertRawLongitudeLatitude(rawLongitude, rawLatitude uint32, bitFactor float64) (lon, lat float64) {
	lon = float64(rawLongitude) * bitFactor
	if lon > 180 {
		lon -= 360.0
	}
	lat = float64(rawLatitude) * bitFactor
	if lat > 90 {
		lat -= 180.0
	}
	return lon, lat
}

// decode6ByteVertex decodes a point/polygon/polyline vertex: 19-bit
// longitude, 19-bit latitude, 10-bit altitude in hundreds of feet.
func decode6ByteVertex(ba []byte, ros int) Vertex {
	longRaw := (uint32(ba[ros]) << 11) | (uint32(ba[ros+1]) << 3) | (uint32(ba[ros+2]&0xE0) >> 5)
	latRaw := (uint32(ba[ros+2]&0x1F) << 14) | (uint32(ba[ros+3]) << 6) | (uint32(ba[ros+4]&0xFC) >> 2)
	alpha := (int(ba[ros+4]&0x03) << 8) | int(ba[ros+5])

	lon, lat := convertRawLongitudeLatitude(longRaw, latRaw, geo19Bits)
	return Vertex{Longitude: lon, Latitude: lat, Z: alpha * 100}
}

// decode14ByteVertex decodes a circular-prism vertex: top and bottom
// 18-bit longitude/latitude centers, altitude bounds in 500-foot
// increments, and major/minor radii in 0.2 NM increments.
func decode14ByteVertex(ba []byte, ros int) Vertex {
	longBotRaw := (uint32(ba[ros]) << 10) | (uint32(ba[ros+1]) << 2) | (uint32(ba[ros+2]&0xC0) >> 6)
	latBotRaw := (uint32(ba[ros+2]&0x3F) << 12) | (uint32(ba[ros+3]) << 4) | (uint32(ba[ros+4]&0xF0) >> 4)
	longTopRaw := (uint32(ba[ros+4]&0x0F) << 14) | (uint32(ba[ros+5]) << 6) | (uint32(ba[ros+6]&0xFC) >> 2)
	latTopRaw := (uint32(ba[ros+6]&0x03) << 16) | (uint32(ba[ros+7]) << 8) | uint32(ba[ros+8])

	lonBot, latBot := convertRawLongitudeLatitude(longBotRaw, latBotRaw, geo18Bits)
	lonTop, latTop := convertRawLongitudeLatitude(longTopRaw, latTopRaw, geo18Bits)

	zBottom := int((ba[ros+9] & 0xFE) >> 1)
	zTop := (int(ba[ros+9]&0x01) << 6) | int((ba[ros+10]&0xFC)>>2)
	rMajor := (int(ba[ros+10]&0x03) << 7) | int((ba[ros+11]&0xFE)>>1)
	rMinor := (int(ba[ros+11]&0x01) << 8) | int(ba[ros+12])
	alpha := int(ba[ros+13])

	return Vertex{
		Longitude:    lonBot,
		Latitude:     latBot,
		LongitudeTop: lonTop,
		LatitudeTop:  latTop,
		ZBottom:      zBottom * 500,
		ZTop:         zTop * 500,
		RMajor:       float64(rMajor) * 0.2,
		RMinor:       float64(rMinor) * 0.2,
		Alpha:        alpha,
	}
}
