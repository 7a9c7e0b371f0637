// Package geom normalizes the graphic half of a TWGO message (raw
// polygon/polyline/circle/point vertex lists, possibly split across
// several overlay records) into a small set of standardized shapes
// ready for inclusion in an outgoing message.
//
// Grounded on fisb/level2/utilities.py's geometry family:
// duplicatePointsAndCircles, geometryPrePass,
// geometryOverlayOperatorPass, processGeometry, and the per-shape
// processPoint/processCircle/processPolygonPolyline helpers.
package geom

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"fisb/internal/apdu/twgo"
	"fisb/internal/fbtime"
)

// ShapeType is the normalized geometry kind a graphic record decodes to.
type ShapeType int

const (
	ShapePolygon ShapeType = iota
	ShapePolyline
	ShapeCircle
	ShapePoint
)

func (s ShapeType) String() string {
	switch s {
	case ShapePolygon:
		return "POLYGON"
	case ShapePolyline:
		return "POLYLINE"
	case ShapeCircle:
		return "CIRCLE"
	case ShapePoint:
		return "POINT"
	default:
		return "UNKNOWN"
	}
}

// AltType is the vertical reference a shape's altitude is measured from.
type AltType int

const (
	AltMSL AltType = iota
	AltAGL
)

func (a AltType) String() string {
	if a == AltAGL {
		return "AGL"
	}
	return "MSL"
}

// objectElementNames maps a graphic record's 5-bit object_element field
// (when element_flag is set) to the condition it names.
var objectElementNames = [...]string{"TFR", "TURB", "LLWS", "SFC", "ICING", "FRZLVL", "IFR", "MTN"}

// Shape is one normalized geometry object ready for message inclusion.
type Shape struct {
	Type ShapeType

	AltitudeHigh     float64
	AltitudeHighType AltType
	AltitudeLow      float64
	AltitudeLowType  AltType

	Point    orb.Point // POINT only
	Ring     orb.Ring  // POLYGON / POLYLINE only
	Center   orb.Point // CIRCLE only
	RadiusNM float64   // CIRCLE only

	StartTime       *time.Time
	StopTime        *time.Time
	StartHourMinute string // date_time_format 3: "HHMM", no date available
	StopHourMinute  string

	Cancelled  bool
	Element    string
	AirportID  string
	Conditions []string // G-AIRMET object qualifiers
}

func getAltTypeAndShape(overlayGeometryOptions int) (AltType, ShapeType, error) {
	switch overlayGeometryOptions {
	case 3:
		return AltMSL, ShapePolygon, nil
	case 4:
		return AltAGL, ShapePolygon, nil
	case 7:
		return AltMSL, ShapeCircle, nil
	case 8:
		return AltAGL, ShapeCircle, nil
	case 9:
		return AltAGL, ShapePoint, nil
	case 10:
		return AltMSL, ShapePoint, nil
	case 11:
		return AltMSL, ShapePolyline, nil
	case 12:
		return AltAGL, ShapePolyline, nil
	default:
		return 0, 0, fmt.Errorf("geom: geometry option %d not implemented", overlayGeometryOptions)
	}
}

// workRecord is a mutable copy of a twgo.GraphicRecord used while the
// merge passes combine and reorder records; overrideAlt carries the
// operator-merge result for the polygon case (the circle case mutates
// the vertex list's altitude directly, matching the original).
type workRecord struct {
	twgo.GraphicRecord
	overrideAlt *altOverride
}

type altOverride struct {
	High     int
	HighType AltType
	Low      int
	LowType  AltType
}

func toWorkRecords(records []twgo.GraphicRecord) []workRecord {
	out := make([]workRecord, len(records))
	for i, r := range records {
		out[i] = workRecord{GraphicRecord: r}
		out[i].Vertices = append([]twgo.Vertex(nil), r.Vertices...)
	}
	return out
}

// duplicatePointsAndCircles splits any circle or point record carrying
// more than one vertex into one record per vertex, so every downstream
// record represents exactly one shape.
func duplicatePointsAndCircles(records []workRecord) []workRecord {
	out := make([]workRecord, 0, len(records))
	for _, r := range records {
		isCircleOrPoint := r.OverlayGeometryOptions == 7 || r.OverlayGeometryOptions == 8 ||
			r.OverlayGeometryOptions == 9 || r.OverlayGeometryOptions == 10
		if isCircleOrPoint && len(r.Vertices) > 1 {
			for _, v := range r.Vertices {
				split := r
				split.Vertices = []twgo.Vertex{v}
				out = append(out, split)
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func verticesEqual(a, b twgo.Vertex) bool {
	return a.Longitude == b.Longitude && a.Latitude == b.Latitude && a.Z == b.Z
}

// polylineAppendCheck appends two polyline vertex lists if the last
// coordinate of the first matches the first coordinate of the second.
func polylineAppendCheck(current, next []twgo.Vertex) (bool, []twgo.Vertex) {
	last := current[len(current)-1]
	first := next[0]
	if !verticesEqual(last, first) {
		return false, nil
	}
	merged := append(append([]twgo.Vertex(nil), current[:len(current)-1]...), next...)
	return true, merged
}

// polygonAppendCheck appends two polygon vertex lists. A polygon
// always closes on its starting vertex; if the current list hasn't
// closed yet (it's a partial record awaiting a continuation), the next
// list is appended, dropping the shared closing vertex when present.
func polygonAppendCheck(current, next []twgo.Vertex) (bool, []twgo.Vertex) {
	start := current[0]
	complete := false
	for _, x := range current[1:] {
		if verticesEqual(x, start) {
			complete = true
		} else if complete {
			start = x
			complete = false
		}
	}
	if complete {
		return false, nil
	}

	last := current[len(current)-1]
	first := next[0]
	if verticesEqual(last, first) {
		merged := append(append([]twgo.Vertex(nil), current[:len(current)-1]...), next...)
		return true, merged
	}
	merged := append(append([]twgo.Vertex(nil), current...), next...)
	return true, merged
}

// polyAppend merges consecutive polygon or polyline records sharing
// the same geometry option starting at index i, returning the number
// of trailing records it consumed and the merged record.
func polyAppend(isPolygon bool, records []workRecord, i int) (int, workRecord) {
	origin := i
	vertices := records[i].Vertices
	skip := 0

	for {
		i++
		if i == len(records) || records[origin].OverlayGeometryOptions != records[i].OverlayGeometryOptions {
			records[origin].Vertices = vertices
			return skip, records[origin]
		}

		var appended bool
		var merged []twgo.Vertex
		if isPolygon {
			appended, merged = polygonAppendCheck(vertices, records[i].Vertices)
		} else {
			appended, merged = polylineAppendCheck(vertices, records[i].Vertices)
		}
		if !appended {
			records[origin].Vertices = vertices
			return skip, records[origin]
		}
		vertices = merged
		skip++
	}
}

// geometryPrePass merges polygon/polyline records that were split
// across more than one overlay record because a single record can
// carry at most 64 vertices.
func geometryPrePass(records []workRecord) []workRecord {
	if len(records) == 1 {
		return records
	}

	lastIdx := len(records) - 1
	out := make([]workRecord, 0, len(records))
	skip := 0

	for i, r := range records {
		if skip > 0 {
			skip--
			continue
		}
		switch {
		case (r.OverlayGeometryOptions == 3 || r.OverlayGeometryOptions == 4) && i != lastIdx:
			var merged workRecord
			skip, merged = polyAppend(true, records, i)
			out = append(out, merged)
		case (r.OverlayGeometryOptions == 11 || r.OverlayGeometryOptions == 12) && i != lastIdx:
			var merged workRecord
			skip, merged = polyAppend(false, records, i)
			out = append(out, merged)
		default:
			out = append(out, r)
		}
	}
	return out
}

// geometryOverlayOperatorPass merges the two records of a TRA/TMOA
// message whose overlay_operator is 1 ("dependent, must be combined")
// into a single record, folding the second record's altitude into the
// first via overrideAlt (polygon) or a direct vertex altitude swap
// (circle).
func geometryOverlayOperatorPass(records []workRecord) ([]workRecord, error) {
	if len(records) != 2 {
		return records, nil
	}
	if records[0].OverlayOperator != 1 {
		return records, nil
	}

	altType0, geoType0, err := getAltTypeAndShape(records[0].OverlayGeometryOptions)
	if err != nil {
		return nil, err
	}
	altType1, geoType1, err := getAltTypeAndShape(records[1].OverlayGeometryOptions)
	if err != nil {
		return nil, err
	}
	if geoType0 != geoType1 {
		return nil, fmt.Errorf("geom: overlay operator merge geometry type mismatch")
	}
	if len(records[0].Vertices) != len(records[1].Vertices) {
		return nil, fmt.Errorf("geom: overlay operator merge vertex count mismatch")
	}

	switch geoType0 {
	case ShapePolygon:
		records[0].overrideAlt = &altOverride{
			High:     records[0].Vertices[0].Z,
			HighType: altType0,
			Low:      records[1].Vertices[0].Z,
			LowType:  altType1,
		}
	case ShapeCircle:
		records[0].Vertices[0].ZBottom = records[1].Vertices[0].ZBottom
	default:
		return nil, fmt.Errorf("geom: overlay operator merge only valid for polygon or circle")
	}

	return records[:1], nil
}

// Process turns the graphic records of one TWGO message into the
// shapes that will be included in the outgoing message. reference is
// used to fill in the year of any start/stop time that carries only
// month/day/hour/minute.
func Process(records []twgo.GraphicRecord, reference time.Time, productID int) ([]Shape, error) {
	work := toWorkRecords(records)
	work = duplicatePointsAndCircles(work)
	work = geometryPrePass(work)

	if productID == 16 || productID == 17 { // NOTAM-TRA, NOTAM-TMOA
		var err error
		work, err = geometryOverlayOperatorPass(work)
		if err != nil {
			return nil, err
		}
	}

	shapes := make([]Shape, 0, len(work))
	for _, r := range work {
		shape, err := populateCommon(r, reference)
		if err != nil {
			return nil, err
		}
		if err := dispatchShape(shape, r.Vertices); err != nil {
			return nil, err
		}
		if r.overrideAlt != nil {
			shape.AltitudeHigh = float64(r.overrideAlt.High)
			shape.AltitudeHighType = r.overrideAlt.HighType
			shape.AltitudeLow = float64(r.overrideAlt.Low)
			shape.AltitudeLowType = r.overrideAlt.LowType
		}
		shapes = append(shapes, *shape)
	}
	return shapes, nil
}

func populateCommon(r workRecord, reference time.Time) (*Shape, error) {
	altType, shapeType, err := getAltTypeAndShape(r.OverlayGeometryOptions)
	if err != nil {
		return nil, err
	}

	s := &Shape{Type: shapeType, AltitudeHighType: altType, AltitudeLowType: altType}

	if r.RecordApplicabilityOptions == 1 || r.RecordApplicabilityOptions == 3 {
		switch r.DateTimeFormat {
		case 1:
			t := fbtime.ComponentsToIso8601Referenced(reference, r.StartMonth, r.StartDay, r.StartHour, r.StartMinute)
			s.StartTime = &t
		case 3:
			s.StartHourMinute = fmt.Sprintf("%02d%02d", r.StartHour, r.StartMinute)
		}
	}
	if r.RecordApplicabilityOptions == 2 || r.RecordApplicabilityOptions == 3 {
		switch r.DateTimeFormat {
		case 1:
			t := fbtime.ComponentsToIso8601Referenced(reference, r.StopMonth, r.StopDay, r.StopHour, r.StopMinute)
			s.StopTime = &t
		case 3:
			s.StopHourMinute = fmt.Sprintf("%02d%02d", r.StopHour, r.StopMinute)
		}
	}

	if r.ObjectStatus == 13 {
		s.Cancelled = true
	}
	if r.ElementFlag != 0 && int(r.ObjectElement) < len(objectElementNames) {
		s.Element = objectElementNames[r.ObjectElement]
	}
	if r.LabelFlag == 1 {
		s.AirportID = r.ObjectLabel
	}
	if r.QualFlag == 1 && len(r.ObjectQualifiers) == 3 {
		s.Conditions = decodeObjectQualifiers(r.ObjectQualifiers)
	}

	return s, nil
}

func dispatchShape(s *Shape, vertices []twgo.Vertex) error {
	switch s.Type {
	case ShapePoint:
		return processPoint(vertices, s)
	case ShapeCircle:
		return processCircle(vertices, s)
	case ShapePolygon, ShapePolyline:
		return processPolygonPolyline(vertices, s)
	default:
		return fmt.Errorf("geom: unhandled shape type %v", s.Type)
	}
}

func processPoint(vertices []twgo.Vertex, s *Shape) error {
	v := vertices[0]
	s.AltitudeHigh = float64(v.Z)
	s.AltitudeLow = 0
	s.Point = orb.Point{v.Longitude, v.Latitude}
	return nil
}

func processCircle(vertices []twgo.Vertex, s *Shape) error {
	if len(vertices) != 1 {
		return fmt.Errorf("geom: multiple circles in a single record, not implemented")
	}
	v := vertices[0]
	if v.Longitude != v.LongitudeTop || v.Latitude != v.LatitudeTop || v.Alpha != 0 || v.RMajor != v.RMinor {
		return fmt.Errorf("geom: circular prism geometry other than a simple circle not implemented")
	}
	s.AltitudeHigh = float64(v.ZTop)
	s.AltitudeLow = float64(v.ZBottom)
	s.Center = orb.Point{v.Longitude, v.Latitude}
	s.RadiusNM = v.RMajor
	return nil
}

// processPolygonPolyline groups vertices by altitude. FIS-B sometimes
// sends the same ring twice, once per altitude, when it really means
// "this one ring spans these two altitudes" — detect that and collapse
// to a single ring with a high and low altitude.
func processPolygonPolyline(vertices []twgo.Vertex, s *Shape) error {
	type altGroup struct {
		alt  int
		ring orb.Ring
	}
	var groups []altGroup
	index := map[int]int{}

	for _, v := range vertices {
		pt := orb.Point{v.Longitude, v.Latitude}
		if gi, ok := index[v.Z]; ok {
			groups[gi].ring = append(groups[gi].ring, pt)
		} else {
			index[v.Z] = len(groups)
			groups = append(groups, altGroup{alt: v.Z, ring: orb.Ring{pt}})
		}
	}

	switch len(groups) {
	case 1:
		s.AltitudeHigh = float64(groups[0].alt)
		s.AltitudeLow = 0
		s.Ring = groups[0].ring
	case 2:
		s.AltitudeHigh = float64(groups[0].alt)
		s.AltitudeLow = float64(groups[1].alt)
		if !ringsEqual(groups[0].ring, groups[1].ring) {
			return fmt.Errorf("geom: two altitude vertex sets do not match")
		}
		s.Ring = groups[0].ring
	default:
		return fmt.Errorf("geom: more than 2 altitudes in a single vertex list")
	}
	return nil
}

func ringsEqual(a, b orb.Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func decodeObjectQualifiers(q []byte) []string {
	var out []string
	if q[0]&0x80 != 0 {
		out = append(out, "UNSPCFD")
	}
	if q[1]&0x01 != 0 {
		out = append(out, "ASH")
	}
	if q[2]&0x80 != 0 {
		out = append(out, "DUST")
	}
	if q[2]&0x40 != 0 {
		out = append(out, "CLOUDS")
	}
	if q[2]&0x20 != 0 {
		out = append(out, "BLSNOW")
	}
	if q[2]&0x10 != 0 {
		out = append(out, "SMOKE")
	}
	if q[2]&0x08 != 0 {
		out = append(out, "HAZE")
	}
	if q[2]&0x04 != 0 {
		out = append(out, "FOG")
	}
	if q[2]&0x02 != 0 {
		out = append(out, "MIST")
	}
	if q[2]&0x01 != 0 {
		out = append(out, "PCPN")
	}
	return out
}

// BlockResolution is the three DO-358 scale factors used by
// block-number geometry.
const (
	ScaleHigh = iota
	ScaleMedium
	ScaleLow
)

// BlockToLatLong converts an FIS-B block number to the latitude and
// longitude of its southwest corner, plus the height and width (in
// degrees) of each bin within the block. Blocks divide the globe into
// a 4-row-by-32-bin grid, 450 blocks per row of latitude, starting at
// the equator and the prime meridian.
func BlockToLatLong(blockNumber int, scaleFactor int) (lat, lon, binHeight, binWidth float64, err error) {
	intPart := blockNumber / 450
	fracPart := float64(blockNumber)/450.0 - float64(intPart)

	lat = float64(intPart) * 4.0 / 60.0
	lon = fracPart * 360.0
	if lon > 180.0 {
		lon -= 360.0
	}

	highLat := lat < 60.0
	switch scaleFactor {
	case ScaleHigh:
		binHeight = 1.0 / 60.0
		if highLat {
			binWidth = 1.5 / 60.0
		} else {
			binWidth = 3.0 / 60.0
		}
	case ScaleMedium:
		binHeight = 5.0 / 60.0
		if highLat {
			binWidth = 7.5 / 60.0
		} else {
			binWidth = 15.0 / 60.0
		}
	case ScaleLow:
		binHeight = 9.0 / 60.0
		if highLat {
			binWidth = 13.5 / 60.0
		} else {
			binWidth = 27.0 / 60.0
		}
	default:
		return 0, 0, 0, 0, fmt.Errorf("geom: illegal scale factor %d", scaleFactor)
	}

	return lat, lon, binHeight, binWidth, nil
}
