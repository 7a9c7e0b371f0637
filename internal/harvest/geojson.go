package harvest

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// nauticalMileMeters matches vectors.py's circleToPolygon constant.
const nauticalMileMeters = 1852.001

// circleToPolygonPoints estimates a geodesic circle of the given
// radius (nautical miles) around (lon, lat) as a numPoints-vertex
// polygon ring. The original computes this with geographiclib's
// WGS84 ellipsoidal direct solution; orb/geo's spherical
// PointAtBearingAndDistance (already a pipeline dependency via
// internal/geom) is close enough for a display bounding shape and
// avoids pulling in a second geodesy library for this alone.
func circleToPolygonPoints(lon, lat, radiusNM float64, numPoints int) [][2]float64 {
	meters := radiusNM * nauticalMileMeters
	center := orb.Point{lon, lat}

	coords := make([][2]float64, numPoints)
	for i := 0; i < numPoints; i++ {
		bearing := 360.0 / float64(numPoints) * float64(i)
		p := geo.PointAtBearingAndDistance(center, bearing, meters)
		coords[i] = [2]float64{round6(p[0]), round6(p[1])}
	}
	return coords
}

func round6(f float64) float64 {
	return float64(int64(f*1e6+sign(f)*0.5)) / 1e6
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// createFeatureDict converts one "geometry" list entry into a geojson
// "features" list entry: type/coordinates pass through unchanged
// except CIRCLE, which expands to a Polygon ring; every other key
// (altitudes, element, cancelled, ...) moves into "properties"
// alongside an "id" taken from the owning record's unique_name.
//
// Grounded on MsgBase.createFeatureDict.
func createFeatureDict(geoEntry map[string]any, uniqueName string) map[string]any {
	geometry := map[string]any{}

	switch geoEntry["type"] {
	case "POINT":
		geometry["type"] = "Point"
		geometry["coordinates"] = geoEntry["coordinates"]
	case "POLYGON":
		geometry["type"] = "Polygon"
		geometry["coordinates"] = geoEntry["coordinates"]
	case "POLYLINE":
		geometry["type"] = "LineString"
		geometry["coordinates"] = geoEntry["coordinates"]
	case "CIRCLE":
		geometry["type"] = "Polygon"
		center, _ := geoEntry["center"].([]any)
		radius, _ := geoEntry["radius_nm"].(float64)
		if len(center) == 2 {
			lon, _ := center[0].(float64)
			lat, _ := center[1].(float64)
			geometry["coordinates"] = [][][2]float64{circleToPolygonPoints(lon, lat, radius, 32)}
		}
	}

	properties := map[string]any{}
	for k, v := range geoEntry {
		switch k {
		case "type", "coordinates", "center", "radius_nm":
			continue
		}
		properties[k] = v
	}
	properties["id"] = uniqueName

	return map[string]any{
		"type":       "Feature",
		"geometry":   geometry,
		"properties": properties,
	}
}

// geometryToGeojson replaces a doc's "geometry" list (the neutral
// normalize.GeometryItem schema, already marshaled to generic maps) in
// place with a "geojson" FeatureCollection, the form persisted
// records carry. A no-op when the doc has no geometry.
//
// Grounded on MsgBase.geometryToGeojson.
func geometryToGeojson(doc map[string]any) {
	geometryAny, ok := doc["geometry"].([]any)
	if !ok {
		return
	}
	uniqueName, _ := doc["unique_name"].(string)

	features := make([]any, 0, len(geometryAny))
	for _, g := range geometryAny {
		entry, ok := g.(map[string]any)
		if !ok {
			continue
		}
		features = append(features, createFeatureDict(entry, uniqueName))
	}

	doc["geojson"] = map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}
	delete(doc, "geometry")
}
