package normalize

import (
	"fmt"
	"regexp"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/config"
	"fisb/internal/fbtime"
	"fisb/internal/geom"
)

var (
	twgoHeaderRE      = regexp.MustCompile(`^([^ ]+) ([^ ]+) ([0-3]\d[0-2]\d[0-5]\d)`)
	twgoHeaderNoStnRE = regexp.MustCompile(`^([^ ]+) +([0-3]\d[0-2]\d[0-5]\d)`)
)

// badAirmetMessages lists texts that got stuck circulating in the FAA
// feed for over a year without ever being retracted. They are dropped
// outright rather than normalized.
var badAirmetMessages = map[string]bool{
	"WST KMKC 062057 CONVECTIVE SIGMET 99C\nFL TN AL MS LA AR TX OK AND FL AL MS LA CSTL WTRS\nFROM 20ENE MEM-20NNW VUZ-110S CEW-50SSW LSU-70NW GGG-10SSW\nFSM-20ENE MEM\nAREA TS MOV LTL. TOPS TO FL410.": true,
	"WST KMKC 170253 CONVECTIVE SIGMET 3E\nNC AND NC SC CSTL WTRS\nFROM 40S ECG-120SE ECG-200SE ILM-120SSE ILM-30WSW ILM-40S ECG\nAREA EMBD TS MOV FROM 17015KT. TOPS TO FL430.":                                true,
}

// Airmet is a normalized AIRMET, SIGMET, WST (convective SIGMET), or
// CWA (center weather advisory). The Type field carries whichever of
// those four keywords opened the report.
type Airmet struct {
	Base
	Station        string         `json:"station"`
	IssuedTime     time.Time      `json:"issued_time"`
	ForUseFromTime *time.Time     `json:"for_use_from_time,omitempty"`
	ForUseToTime   *time.Time     `json:"for_use_to_time,omitempty"`
	Contents       string         `json:"contents"`
	Geometry       []GeometryItem `json:"geometry,omitempty"`
}

// CancelCwa closes out a CWA report id: a CWA cancellation carries no
// text body of its own, just a record_status of 0 on a text record.
type CancelCwa struct {
	Base
}

// AirmetFamily normalizes product ids 11 (AIRMET), 12 (SIGMET/WST),
// and 15 (CWA).
func AirmetFamily(text *twgo.Record, graphics *twgo.Record, productID int, hdr apdu.Header, station string, reception time.Time, cfg config.Config) (any, error) {
	rec := text.TextRecords[0]
	reportID := fmt.Sprintf("%d-%d", rec.ReportYear, rec.ReportNumber)

	if productID == 15 && rec.ReportStatus == 0 {
		return &CancelCwa{
			Base: Base{Type: "CANCEL_CWA", UniqueName: reportID, ExpirationTime: reception.Add(cfg.CancelExpire)},
		}, nil
	}

	if badAirmetMessages[rec.Text] {
		return nil, nil
	}

	if len(rec.Text) == 0 {
		return nil, ErrIllegalTwgoMessage
	}

	body := cleanFAAText(rec.Text)

	m := twgoHeaderRE.FindStringSubmatch(body)
	var reportType, twgoTime string
	if m != nil {
		reportType, twgoTime = m[1], m[3]
	} else {
		m = twgoHeaderNoStnRE.FindStringSubmatch(body)
		if m == nil {
			return nil, ErrTwgoHeaderParse
		}
		reportType, twgoTime = m[1], m[2]
	}

	anchor := apduDate(reception, hdr)
	issued, err := fbtime.DayHourMinute(anchor, twgoTime)
	if err != nil {
		return nil, err
	}

	msg := &Airmet{
		Station:    station,
		IssuedTime: issued,
		Contents:   body,
	}
	msg.Type = reportType
	msg.UniqueName = reportID

	if graphics != nil {
		g0 := graphics.GraphicRecords[0]
		if g0.OverlayGeometryOptions != 3 && g0.OverlayGeometryOptions != 4 {
			return nil, ErrIllegalTwgoMessage
		}

		if g0.RecordApplicabilityOptions == 3 {
			start := fbtime.ComponentsToIso8601Referenced(issued, g0.StartMonth, g0.StartDay, g0.StartHour, g0.StartMinute)
			stop := fbtime.ComponentsToIso8601Referenced(issued, g0.StopMonth, g0.StopDay, g0.StopHour, g0.StopMinute)
			msg.ForUseFromTime = &start
			msg.ForUseToTime = &stop
		}

		shapes, err := geom.Process(graphics.GraphicRecords, issued, productID)
		if err != nil {
			return nil, err
		}
		msg.Geometry = geometryItems(shapes)
	}

	msg.ExpirationTime = twgoExpirationTime(msg.Geometry, reception, nil, cfg.BypassTwgoSmartExpiration, cfg.TwgoDefaultExpire)
	return msg, nil
}
