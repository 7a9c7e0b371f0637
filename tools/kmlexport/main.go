// Command kmlexport exports harvested geometry-bearing records (NOTAMs,
// TFRs, AIRMETs, SIGMETs, G-AIRMETs, CWAs) from the MSG store to KML so
// they can be viewed in Google Earth or another mapping application.
//
// KML (Keyhole Markup Language) files can be viewed in Google Earth,
// Google Maps, and other mapping applications.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"fisb/internal/config"
	"fisb/internal/store"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string     `xml:"id,attr"`
	LineStyle *LineStyle `xml:"LineStyle,omitempty"`
	PolyStyle *PolyStyle `xml:"PolyStyle,omitempty"`
}

// LineStyle controls outline rendering.
type LineStyle struct {
	Color string  `xml:"color,omitempty"`
	Width float64 `xml:"width,omitempty"`
}

// PolyStyle controls fill rendering.
type PolyStyle struct {
	Color string `xml:"color,omitempty"`
	Fill  int    `xml:"fill"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        *Point        `xml:"Point,omitempty"`
	Polygon      *Polygon      `xml:"Polygon,omitempty"`
	LineString   *LineString   `xml:"LineString,omitempty"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// LineString represents an open vertex path (a POLYLINE shape).
type LineString struct {
	Coordinates string `xml:"coordinates"`
}

// Polygon represents a closed ring (a POLYGON or CIRCLE shape).
type Polygon struct {
	OuterBoundary OuterBoundary `xml:"outerBoundaryIs"`
}

// OuterBoundary wraps a polygon's ring.
type OuterBoundary struct {
	LinearRing LinearRing `xml:"LinearRing"`
}

// LinearRing holds a closed coordinate ring.
type LinearRing struct {
	Coordinates string `xml:"coordinates"`
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// geometryRecord is the subset of a normalized MSG document this tool
// reads: enough fields to place and label a placemark, whatever kind
// of geometry-bearing message it came from.
type geometryRecord struct {
	Type           string
	UniqueName     string
	Station        string
	ExpirationTime time.Time
	Geometry       []geometryItem
}

type geometryItem struct {
	Type        string
	Coordinates [][2]float64
	Center      *[2]float64
	RadiusNM    float64
}

func main() {
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "fisb", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "fisb", "PostgreSQL password")
	pgDB := flag.String("pg-db", "fisb", "PostgreSQL database")

	output := flag.String("output", "", "Output KML file (default: stdout)")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	pg, err := store.Open(ctx, config.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	docs, err := pg.FindMany(ctx, "MSG", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying MSG store: %v\n", err)
		os.Exit(1)
	}

	records := geometryRecords(docs)

	if *showStats {
		showGeometryStats(records)
		return
	}

	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "No geometry-bearing records found\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d records to KML\n", len(records))
	}

	kml := generateKML(records)

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// geometryRecords decodes the subset of stored MSG documents that
// carry a non-empty geometry field. Documents come back from the
// store as map[string]any (the JSONB column decoded generically), so
// fields are pulled with type assertions rather than a struct tag
// based unmarshal.
func geometryRecords(docs []map[string]any) []geometryRecord {
	var out []geometryRecord
	for _, doc := range docs {
		rawGeom, ok := doc["geometry"].([]any)
		if !ok || len(rawGeom) == 0 {
			continue
		}

		rec := geometryRecord{
			Type:       stringField(doc, "type"),
			UniqueName: stringField(doc, "unique_name"),
			Station:    stringField(doc, "station"),
		}
		if exp, ok := doc["expiration_time"].(string); ok {
			if t, err := time.Parse(time.RFC3339, exp); err == nil {
				rec.ExpirationTime = t
			}
		}

		for _, g := range rawGeom {
			gm, ok := g.(map[string]any)
			if !ok {
				continue
			}
			item := geometryItem{Type: stringField(gm, "type"), RadiusNM: floatField(gm, "radius_nm")}
			if coords, ok := gm["coordinates"].([]any); ok {
				for _, c := range coords {
					if pair, ok := c.([]any); ok && len(pair) == 2 {
						lon, _ := pair[0].(float64)
						lat, _ := pair[1].(float64)
						item.Coordinates = append(item.Coordinates, [2]float64{lon, lat})
					}
				}
			}
			if center, ok := gm["center"].([]any); ok && len(center) == 2 {
				lon, _ := center[0].(float64)
				lat, _ := center[1].(float64)
				item.Center = &[2]float64{lon, lat}
			}
			rec.Geometry = append(rec.Geometry, item)
		}
		if len(rec.Geometry) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

// generateKML creates a KML document from geometry-bearing records,
// one placemark per shape.
func generateKML(records []geometryRecord) KML {
	var placemarks []Placemark
	for _, rec := range records {
		description := fmt.Sprintf("Station: %s\nExpires: %s", rec.Station, rec.ExpirationTime.Format("2006-01-02 15:04:05 UTC"))
		for i, shape := range rec.Geometry {
			name := rec.UniqueName
			if len(rec.Geometry) > 1 {
				name = fmt.Sprintf("%s-%d", rec.UniqueName, i+1)
			}
			pm := Placemark{
				Name:        name,
				Description: description,
				StyleURL:    "#" + rec.Type,
				ExtendedData: &ExtendedData{Data: []Data{
					{Name: "type", Value: rec.Type},
					{Name: "station", Value: rec.Station},
				}},
			}
			switch shape.Type {
			case "POINT":
				if len(shape.Coordinates) == 1 {
					pm.Point = &Point{Coordinates: fmt.Sprintf("%.6f,%.6f,0", shape.Coordinates[0][0], shape.Coordinates[0][1])}
				}
			case "POLYLINE":
				pm.LineString = &LineString{Coordinates: coordString(shape.Coordinates)}
			case "POLYGON":
				pm.Polygon = &Polygon{OuterBoundary: OuterBoundary{LinearRing: LinearRing{Coordinates: coordString(shape.Coordinates)}}}
			case "CIRCLE":
				if shape.Center != nil {
					pm.Polygon = &Polygon{OuterBoundary: OuterBoundary{LinearRing: LinearRing{Coordinates: circleRing(*shape.Center, shape.RadiusNM)}}}
				}
			}
			placemarks = append(placemarks, pm)
		}
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "FIS-B Products",
			Description: fmt.Sprintf("Geometry harvested from ground-uplink products. Generated %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{ID: "NOTAM", PolyStyle: &PolyStyle{Color: "5014F0FF", Fill: 1}},
				{ID: "NOTAM_TFR", PolyStyle: &PolyStyle{Color: "5000A5FF", Fill: 1}},
				{ID: "AIRMET", LineStyle: &LineStyle{Color: "FF00FFFF", Width: 2}},
				{ID: "SIGMET", LineStyle: &LineStyle{Color: "FF0000FF", Width: 2}},
				{ID: "WST", LineStyle: &LineStyle{Color: "FF0000FF", Width: 2}},
				{ID: "CWA", LineStyle: &LineStyle{Color: "FFFF00FF", Width: 2}},
				{ID: "G_AIRMET", LineStyle: &LineStyle{Color: "FF00FF00", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}
}

func coordString(points [][2]float64) string {
	s := ""
	for i, p := range points {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.6f,%.6f,0", p[0], p[1])
	}
	return s
}

// circleRing approximates a CIRCLE shape as a 36-point polygon ring,
// since KML has no native circle primitive.
func circleRing(center [2]float64, radiusNM float64) string {
	const nmPerDegreeLat = 60.0
	s := ""
	for i := 0; i <= 36; i++ {
		angle := float64(i) * 10.0 * (math.Pi / 180.0)
		dLat := radiusNM / nmPerDegreeLat * math.Cos(angle)
		dLon := radiusNM / (nmPerDegreeLat * math.Cos(center[1]*(math.Pi/180.0))) * math.Sin(angle)
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.6f,%.6f,0", center[0]+dLon, center[1]+dLat)
	}
	return s
}

func showGeometryStats(records []geometryRecord) {
	byType := make(map[string]int)
	for _, r := range records {
		byType[r.Type]++
	}

	fmt.Println("Geometry Export Statistics")
	fmt.Println("──────────────────────────")
	fmt.Printf("Total records:       %d\n", len(records))
	fmt.Println("\nBy type:")
	for t, n := range byType {
		fmt.Printf("%-16s %6d\n", t, n)
	}
}
