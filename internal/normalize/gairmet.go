package normalize

import (
	"fmt"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/config"
	"fisb/internal/fbtime"
	"fisb/internal/geom"
)

// Gairmet is a normalized graphical AIRMET, one of three forecast
// horizons (0, 3, or 6 hours) inferred from its start/stop times since
// the FAA feed never states the horizon directly.
type Gairmet struct {
	Base
	ForecastHour   int            `json:"subtype"`
	Station        string         `json:"station"`
	IssuedTime     time.Time      `json:"issued_time"`
	ForUseFromTime time.Time      `json:"for_use_from_time"`
	ForUseToTime   time.Time      `json:"for_use_to_time"`
	Geometry       []GeometryItem `json:"geometry"`
}

// CancelGairmet closes out a previously-seen graphical AIRMET.
type CancelGairmet struct {
	Base
}

// GairmetFamily normalizes product id 14 (G-AIRMET). All records in
// graphics share the same header fields; only the vertex list differs
// between them, so the first record is used to derive everything but
// the geometry.
func GairmetFamily(graphics *twgo.Record, hdr apdu.Header, station string, reception time.Time, cfg config.Config) (any, error) {
	g0 := graphics.GraphicRecords[0]
	reportID := fmt.Sprintf("%d-%d", g0.ReportYear, g0.ReportNumber)

	if g0.ObjectStatus == 13 {
		return &CancelGairmet{
			Base: Base{Type: "CANCEL_G_AIRMET", UniqueName: reportID, ExpirationTime: reception.Add(cfg.CancelExpire)},
		}, nil
	}

	if g0.ObjectStatus != 15 || g0.DateTimeFormat != 1 ||
		(g0.OverlayGeometryOptions != 3 && g0.OverlayGeometryOptions != 4 &&
			g0.OverlayGeometryOptions != 11 && g0.OverlayGeometryOptions != 12) {
		return nil, ErrGAirmetMessage
	}

	reportFullYear, err := fbtime.DoubleDigitYear(reception.Year(), g0.ReportYear)
	if err != nil {
		return nil, err
	}
	issued := componentsToIso8601(reportFullYear, hdr.Month, hdr.Day, hdr.Hour, hdr.Minute)

	start := fbtime.ComponentsToIso8601Referenced(issued, g0.StartMonth, g0.StartDay, g0.StartHour, g0.StartMinute)
	stop := fbtime.ComponentsToIso8601Referenced(issued, g0.StopMonth, g0.StopDay, g0.StopHour, g0.StopMinute)

	var fcHour int
	if start.Equal(stop) {
		fcHour = 6
		// The 6-hour forecast's published stop time equals its start;
		// the actual forecast window runs 3 hours past that.
		stop = start.Add(3 * time.Hour)
	} else if stop.Minute() == 0 {
		switch stop.Hour() {
		case 0, 6, 12, 18:
			fcHour = 0
		case 3, 9, 15, 21:
			fcHour = 3
		default:
			return nil, ErrGAirmetMessage
		}
	} else {
		return nil, ErrGAirmetMessage
	}

	shapes, err := geom.Process(graphics.GraphicRecords, issued, 14)
	if err != nil {
		return nil, err
	}
	geometry := geometryItems(shapes)

	msg := &Gairmet{
		ForecastHour:   fcHour,
		Station:        station,
		IssuedTime:     issued,
		ForUseFromTime: start,
		ForUseToTime:   stop,
		Geometry:       geometry,
	}
	msg.Type = "G_AIRMET"
	msg.UniqueName = reportID
	msg.ExpirationTime = twgoExpirationTime(geometry, reception, nil, cfg.BypassTwgoSmartExpiration, cfg.TwgoDefaultExpire)
	return msg, nil
}
