package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/twgo"
	"fisb/internal/config"
	"fisb/internal/fbtime"
	"fisb/internal/geom"
)

var (
	notamTfrRE      = regexp.MustCompile(`^NOTAM-TFR ([0-9]/[0-9]{4}) `)
	notamRE         = regexp.MustCompile(`NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) !([^ ]+) ([^ ]+) ([^ ]+) ([^ ]+)`)
	notamContentsRE = regexp.MustCompile(`(?s)NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) (.+)`)
	notamSuaRE      = regexp.MustCompile(`.*AIRSPACE (LGT OUT/NIGHT VISION GOGGLE TRAINING )?(.+) ACT (.+) \d{10}-\d{10}`)
	notamSuaAltRE   = regexp.MustCompile(`((FL\d+)|SFC|(\d+FT( AGL)?))(-| UP TO BUT NOT INCLUDING )((FL\d+)|(\d+FT( AGL)?))`)

	fisbRE     = regexp.MustCompile(`FIS-B ([0-3]\d[0-2]\d[0-5]\d)Z ([^ ]+) (.+)`)
	fisbProdRE = regexp.MustCompile(`^(.+) PRODUCT`)
)

// CancelNotam closes out a report id previously seen as an active
// NOTAM/NOTAM-TFR.
type CancelNotam struct {
	Base
}

// FisBUnavailable reports a FIS-B ground station product outage,
// announced by the provider rather than the FAA.
type FisBUnavailable struct {
	Base
	IssuedTime time.Time `json:"issued_time"`
	Contents   string    `json:"contents"`
	Product    string    `json:"product"`
	Centers    []string  `json:"centers"`
}

// Notam is a normalized NOTAM, covering the D/FDC/TMOA/TRA family
// (with the D-SUA special altitude parse) and the provider-generated
// NOTAM-TFR variant.
type Notam struct {
	Base
	Subtype  string `json:"subtype"` // D, D-SUA, FDC, TMOA, TRA, or TFR
	Station  string `json:"station"`
	Contents string `json:"contents,omitempty"`

	// TFR-only.
	Number    string `json:"number,omitempty"`
	RenewOnly bool   `json:"renew_only,omitempty"`

	// D/FDC/TMOA/TRA-only.
	Location    string `json:"location,omitempty"`
	Accountable string `json:"accountable,omitempty"`
	Affected    string `json:"affected,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
	NotamNumber string `json:"notam_number,omitempty"`

	// TMOA/TRA/D-SUA-only.
	Airspace     string        `json:"airspace,omitempty"`
	AltitudeText string        `json:"altitude_text,omitempty"`
	Altitudes    []SuaAltitude `json:"altitudes,omitempty"`

	StartOfActivityTime *time.Time     `json:"start_of_activity_time,omitempty"`
	EndOfValidityTime   *time.Time     `json:"end_of_validity_time,omitempty"`
	Geometry            []GeometryItem `json:"geometry,omitempty"`
}

// SuaAltitude is one bound ([high, low]) of a D-SUA NOTAM's parsed
// altitude clause.
type SuaAltitude struct {
	Feet int    `json:"feet"`
	Unit string `json:"unit"` // AGL, MSL, or FT when the units are ambiguous
}

// notamReportID builds the identity a NOTAM's CRL entry and text/
// graphics matcher agree on: TMOA/TRA key off the APDU month since
// they never carry a usable report year, everything else keys off the
// report year and, when present, the affected location (so repeated
// report numbers across FAA regions don't collide).
func notamReportID(productID int, apduMonth int, reportYear, reportNumber int, location string) string {
	if productID == 16 || productID == 17 {
		return strconv.Itoa(apduMonth) + "-" + strconv.Itoa(reportNumber)
	}
	id := strconv.Itoa(reportYear) + "-" + strconv.Itoa(reportNumber)
	location = strings.TrimSpace(location)
	if location != "" {
		id += "-" + location
	}
	return id
}

// NotamFamily dispatches a decoded NOTAM/NOTAM-TFR/FIS_B_UNAVAILABLE
// TWGO record (product id 8, 16, or 17) to its converter.
func NotamFamily(text *twgo.Record, graphics *twgo.Record, productID int, hdr apdu.Header, station string, reception time.Time, cfg config.Config) (any, error) {
	if text.RecordCount != 1 {
		return nil, ErrTooManyRecords
	}
	rec := text.TextRecords[0]
	anchor := apduDate(reception, hdr)
	rYear := anchor.Year()

	reportID := notamReportID(productID, hdr.Month, rec.ReportYear, rec.ReportNumber, text.Location)

	if rec.ReportStatus == 0 {
		return &CancelNotam{
			Base: Base{Type: "CANCEL_NOTAM", UniqueName: reportID, ExpirationTime: reception.Add(cfg.CancelExpire)},
		}, nil
	}

	if len(rec.Text) == 0 {
		return &Notam{
			Base:      Base{Type: "NOTAM", UniqueName: reportID, ExpirationTime: reception.Add(cfg.TwgoDefaultExpire)},
			Subtype:   "TFR",
			Station:   station,
			RenewOnly: true,
		}, nil
	}

	body := cleanFAAText(rec.Text)

	switch {
	case strings.HasPrefix(body, "FIS-B"):
		return fisbProductUnavailable(anchor, reportID, body, reception, cfg)
	case strings.HasPrefix(body, "NOTAM-TFR"):
		return tfrNotam(rYear, reportID, body, graphics, productID, station, reception, cfg)
	default:
		return notam(rYear, text.Location, reportID, body, graphics, productID, station, reception, cfg)
	}
}

func fisbProductUnavailable(anchor time.Time, reportID, text string, reception time.Time, cfg config.Config) (*FisBUnavailable, error) {
	// An old test-message format predates the current "FIS-B <time>Z" header.
	if strings.HasPrefix(text, "FIS-B SERVICE OUTAGE") && len(text) > 21 {
		text = "FIS-B " + text[21:]
	}

	m := fisbRE.FindStringSubmatch(text)
	if m == nil {
		return nil, ErrRegexDidNotMatch
	}

	issued, err := fbtime.DayHourMinute(anchor, m[1])
	if err != nil {
		return nil, err
	}
	centers := strings.Split(m[2], ",")
	contents := m[3]

	prodMatch := fisbProdRE.FindStringSubmatch(contents)
	if prodMatch == nil {
		return nil, ErrRegexDidNotMatch
	}

	return &FisBUnavailable{
		Base:       Base{Type: "FIS_B_UNAVAILABLE", UniqueName: reportID, ExpirationTime: reception.Add(cfg.FisbUnavailExpire)},
		IssuedTime: issued,
		Contents:   contents,
		Product:    prodMatch[1],
		Centers:    centers,
	}, nil
}

func tfrNotam(rYear int, reportID, text string, graphics *twgo.Record, productID int, station string, reception time.Time, cfg config.Config) (*Notam, error) {
	number := notamTfrRE.FindStringSubmatch(text)
	if number == nil {
		return nil, ErrRegexDidNotMatch
	}

	msg := &Notam{
		Subtype:  "TFR",
		Station:  station,
		Contents: text,
		Number:   number[1],
	}
	msg.Type = "NOTAM"
	msg.UniqueName = reportID

	startAct, endValid, err := insertNotamDates(rYear, text, cfg.NotamPermTime)
	if err != nil {
		return nil, err
	}
	msg.StartOfActivityTime = startAct
	msg.EndOfValidityTime = endValid

	soat := reception
	if startAct != nil {
		soat = *startAct
	}

	if graphics != nil {
		shapes, err := geom.Process(graphics.GraphicRecords, soat, productID)
		if err != nil {
			return nil, err
		}
		msg.Geometry = geometryItems(shapes)
	}

	msg.ExpirationTime = twgoExpirationTime(msg.Geometry, reception, nil, cfg.BypassTwgoSmartExpiration, cfg.TwgoDefaultExpire)
	return msg, nil
}

func notam(rYear int, location, reportID, text string, graphics *twgo.Record, productID int, station string, reception time.Time, cfg config.Config) (*Notam, error) {
	comp := notamRE.FindStringSubmatch(text)
	contentsMatch := notamContentsRE.FindStringSubmatch(text)
	if comp == nil || contentsMatch == nil {
		return nil, ErrRegexDidNotMatch
	}

	subtype := comp[1]
	accountableLocation := comp[4]
	notamNumber := comp[5]
	affectedLocation := comp[6]
	keyword := comp[7]

	notamContents := contentsMatch[4]
	if len(notamContents) == 0 || notamContents[0] != '!' {
		return nil, ErrRegexDidNotMatch
	}

	msg := &Notam{
		Subtype:     subtype,
		Location:    location,
		Contents:    notamContents,
		Accountable: accountableLocation,
		Affected:    affectedLocation,
		Keyword:     keyword,
		NotamNumber: notamNumber,
		Station:     station,
	}
	msg.Type = "NOTAM"
	msg.UniqueName = reportID

	startAct, endValid, err := insertNotamDates(rYear, text, cfg.NotamPermTime)
	if err != nil {
		return nil, err
	}
	msg.StartOfActivityTime = startAct
	msg.EndOfValidityTime = endValid

	if subtype == "D" && strings.HasPrefix(accountableLocation, "SUA") {
		msg.Subtype = "D-SUA"
	}

	if msg.Subtype == "TMOA" || msg.Subtype == "TRA" || msg.Subtype == "D-SUA" {
		if sua := notamSuaRE.FindStringSubmatch(notamContents); sua != nil {
			msg.Airspace = sua[2]
			msg.AltitudeText = sua[3]

			if msg.Subtype == "D-SUA" {
				if altitudes := parseSuaAltitudeString(sua[3]); altitudes != nil {
					msg.Altitudes = altitudes
				}
			}
		}
	}

	soat := reception
	if startAct != nil {
		soat = *startAct
	}

	if graphics != nil {
		shapes, err := geom.Process(graphics.GraphicRecords, soat, productID)
		if err != nil {
			return nil, err
		}
		msg.Geometry = geometryItems(shapes)
	}

	var notamExpire *time.Time
	if endValid != nil && !endValid.Equal(cfg.NotamPermTime) {
		notamExpire = endValid
	}

	msg.ExpirationTime = twgoExpirationTime(msg.Geometry, reception, notamExpire, cfg.BypassTwgoSmartExpiration, cfg.TwgoDefaultExpire)
	return msg, nil
}

// insertNotamDates extracts the embedded "start-end" validity pair a
// NOTAM body carries, if any. An end time of PERM resolves to the
// configured far-future sentinel.
func insertNotamDates(rYear int, text string, permTime time.Time) (startAct, endValid *time.Time, err error) {
	m := notamTimesRE.FindStringSubmatch(text)
	if m == nil {
		return nil, nil, nil
	}

	var end time.Time
	if m[2] == "PERM" {
		end = permTime
	} else {
		end, err = notamTimeToIso8601(rYear, m[2])
		if err != nil {
			return nil, nil, err
		}
	}

	start, err := notamTimeToIso8601(rYear, m[1])
	if err != nil {
		return nil, nil, err
	}

	return &start, &end, nil
}

// parseAlt converts one altitude token ("FL180", "SFC", "1200FT", or
// "1200FT AGL") into feet and its unit. subOne compensates for
// exclusive "UP TO BUT NOT INCLUDING" ranges on flight levels.
func parseAlt(altString string, subOne bool) (int, string) {
	if altString == "SFC" {
		return 0, "AGL"
	}

	var unit string
	switch {
	case strings.Contains(altString, "FL"):
		unit = "MSL"
	case strings.Contains(altString, "AGL"):
		unit = "AGL"
	case strings.Contains(altString, "FT"):
		unit = "FT"
	default:
		return 0, ""
	}

	var feet int
	if strings.HasPrefix(altString, "FL") {
		n, _ := strconv.Atoi(altString[2:])
		feet = n * 100
		if subOne {
			feet--
		}
	} else {
		idx := strings.Index(altString, "F")
		n, _ := strconv.Atoi(altString[0:idx])
		feet = n
	}

	return feet, unit
}

// parseSuaAltitudeString parses a D-SUA NOTAM's altitude clause
// ("FL180-FL230", "SFC-3000FT AGL", or "...UP TO BUT NOT INCLUDING
// FL180") into [high, low] bounds.
func parseSuaAltitudeString(altitudeString string) []SuaAltitude {
	m := notamSuaAltRE.FindStringSubmatch(altitudeString)
	if m == nil {
		return nil
	}

	lower := m[1]
	upper := m[6]
	sep := m[5]
	subOne := sep != "-"

	lowFeet, lowUnit := parseAlt(lower, false)
	highFeet, highUnit := parseAlt(upper, subOne)

	return []SuaAltitude{
		{Feet: highFeet, Unit: highUnit},
		{Feet: lowFeet, Unit: lowUnit},
	}
}
