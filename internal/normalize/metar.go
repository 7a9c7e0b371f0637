package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/config"
	"fisb/internal/fbtime"
)

var (
	metarRE  = regexp.MustCompile(`^(METAR|SPECI) ([0-9A-Z]{4}) ([0-9]{6})`)
	windsRE  = regexp.MustCompile(`^(WINDS) ([0-9A-Z]{3}) ([0-9]{6})Z`)
	tafRE    = regexp.MustCompile(`^(TAF|TAF\.AMD|TAF COR) ([0-9A-Z]{4}) ([0-9]{6})Z ([0-9]{4})/([0-9]{4})`)
	tafNoZRE = regexp.MustCompile(`^(TAF|TAF\.AMD|TAF COR) ([0-9A-Z]{4}) ([0-9]{4})/([0-9]{4})`)
	pirepRE  = regexp.MustCompile(`^(PIREP) ([^ ]+) ([0-9]{6})Z ([^ ]+) (UA|UUA) (.+)`)
)

// pirepFieldsFrom/pirepFieldsTo rewrite PIREP field tags to a private
// marker before splitting, so a stray "/OV" inside a remark doesn't
// get mistaken for a field boundary. The trailing space on "/OV "
// keeps "/OVC" in a remark from matching.
var pirepFieldsFrom = []string{"/OV ", "/TM", "/FL", "/TP", "/TB", "/SK", "/RM", "/WX", "/TA", "/WV", "/IC"}
var pirepFieldsTo = []string{"~OV", "~TM", "~FL", "~TP", "~TB", "~SK", "~RM", "~WX", "~TA", "~WV", "~IC"}

// windMatrix maps (product-available-time bucket) x (valid-time bucket)
// to a forecast horizon in hours, or -1 for a combination that can't
// legally occur. Rows are APDU hour buckets 0200/0800/1400/2000;
// columns are message valid-time buckets 0600/1200/1800/0000.
var windMatrix = [4][4]int{
	{6, 12, -1, 24},
	{24, 6, 12, -1},
	{-1, 24, 6, 12},
	{12, -1, 24, 6},
}

// Metar is a normalized METAR/SPECI observation.
type Metar struct {
	Base
	Location        string    `json:"location"`
	Contents        string    `json:"contents"`
	ObservationTime time.Time `json:"observation_time"`
}

// Taf is a normalized terminal aerodrome forecast.
type Taf struct {
	Base
	Location             string    `json:"location"`
	Contents             string    `json:"contents"`
	IssuedTime           time.Time `json:"issued_time"`
	ValidPeriodBeginTime time.Time `json:"valid_period_begin_time"`
	ValidPeriodEndTime   time.Time `json:"valid_period_end_time"`
}

// Winds is a normalized winds-and-temperatures-aloft forecast for one
// of the three published horizons (6, 12, or 24 hours), chosen by
// cross-referencing the APDU's product-available time against the
// message's valid time in windMatrix.
type Winds struct {
	Base
	Location       string    `json:"location"`
	Contents       string    `json:"contents"`
	IssuedTime     time.Time `json:"issued_time"`
	ValidTime      time.Time `json:"valid_time"`
	ModelRunTime   time.Time `json:"model_run_time"`
	ForUseFromTime time.Time `json:"for_use_from_time"`
	ForUseToTime   time.Time `json:"for_use_to_time"`
}

// Pirep is a normalized pilot report, split into its field-tagged
// components (ov, tm, fl, tp, tb, sk, rm, wx, ta, wv, ic). The OV
// field is free-text entered by the reporting facility and is not a
// reliable location; callers should not treat it as one.
type Pirep struct {
	Base
	ReportType string            `json:"report_type"`
	Station    string            `json:"station"`
	Contents   string            `json:"contents"`
	ReportTime time.Time         `json:"report_time"`
	Fields     map[string]string `json:"fields"`
}

// apduDate resolves the calendar date a DLAC text frame's APDU header
// fragment most likely refers to, relative to reception: the full
// month/day/hour/minute fragment when the header carries one, else
// just the hour/minute fragment against the nearest day.
func apduDate(reception time.Time, hdr apdu.Header) time.Time {
	if hdr.TimeOption == 2 {
		return fbtime.ComponentsToIso8601Referenced(reception, hdr.Month, hdr.Day, hdr.Hour, hdr.Minute)
	}
	return fbtime.FromApduHourMinutes(reception, hdr.Hour, hdr.Minute, false)
}

// DLACText dispatches a decoded 413 text payload to its METAR/TAF/
// WINDS/PIREP converter based on its leading keyword.
func DLACText(contents string, hdr apdu.Header, reception time.Time, cfg config.Config) (any, error) {
	contents = cleanFAAText(contents)

	switch {
	case strings.HasPrefix(contents, "METAR"), strings.HasPrefix(contents, "SPECI"):
		return metar(contents, reception, hdr, cfg)
	case strings.HasPrefix(contents, "TAF"):
		return taf(contents, reception, hdr)
	case strings.HasPrefix(contents, "WINDS"):
		return winds(contents, reception, hdr)
	case strings.HasPrefix(contents, "PIREP"):
		return pirep(contents, reception, hdr, cfg)
	default:
		return nil, ErrUnknown413Message
	}
}

func metar(contents string, reception time.Time, hdr apdu.Header, cfg config.Config) (*Metar, error) {
	m := metarRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, ErrRegexDidNotMatch
	}
	location := m[2]

	observation, err := fbtime.DayHourMinute(apduDate(reception, hdr), m[3])
	if err != nil {
		return nil, err
	}

	return &Metar{
		Base:            Base{Type: "METAR", UniqueName: location, ExpirationTime: observation.Add(cfg.MetarExpire)},
		Location:        location,
		Contents:        contents,
		ObservationTime: observation,
	}, nil
}

func taf(contents string, reception time.Time, hdr apdu.Header) (*Taf, error) {
	m := tafRE.FindStringSubmatch(contents)
	issuedGroup, beginGroup, endGroup := 3, 4, 5
	if m == nil {
		// Naval Air Station TAFs omit the issued-time Zulu group.
		m = tafNoZRE.FindStringSubmatch(contents)
		if m == nil {
			return nil, ErrRegexDidNotMatch
		}
		issuedGroup, beginGroup, endGroup = 3, 3, 4
	}

	location := m[2]
	anchor := apduDate(reception, hdr)

	issued, err := fbtime.DayHourMinute(anchor, m[issuedGroup])
	if err != nil {
		return nil, err
	}
	begin, err := fbtime.DayHourMinute(anchor, m[beginGroup])
	if err != nil {
		return nil, err
	}
	end, err := fbtime.DayHourMinute(anchor, m[endGroup])
	if err != nil {
		return nil, err
	}

	return &Taf{
		Base:                 Base{Type: "TAF", UniqueName: location, ExpirationTime: end},
		Location:             location,
		Contents:             contents,
		IssuedTime:           issued,
		ValidPeriodBeginTime: begin,
		ValidPeriodEndTime:   end,
	}, nil
}

func winds(contents string, reception time.Time, hdr apdu.Header) (*Winds, error) {
	m := windsRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, ErrRegexDidNotMatch
	}
	location := m[2]
	validTimeStr := m[3]

	// The header line naming each altitude column isn't part of the
	// report; only the body line after it is kept.
	lines := strings.SplitN(contents, "\n", 2)
	if len(lines) != 2 {
		return nil, ErrRegexDidNotMatch
	}
	body := strings.TrimRight(lines[1], " \t\r")

	var paIdx int
	switch {
	case hdr.Hour >= 1 && hdr.Hour < 3: // 0200
		paIdx = 0
	case hdr.Hour >= 7 && hdr.Hour < 9: // 0800
		paIdx = 1
	case hdr.Hour >= 13 && hdr.Hour < 15: // 1400
		paIdx = 2
	case hdr.Hour >= 19 && hdr.Hour < 21: // 2000
		paIdx = 3
	default:
		return nil, ErrIllegalWindProduct
	}

	vTimeInt, err := strconv.Atoi(validTimeStr[2:])
	if err != nil {
		return nil, ErrRegexDidNotMatch
	}
	var vtIdx int
	switch vTimeInt {
	case 600:
		vtIdx = 0
	case 1200:
		vtIdx = 1
	case 1800:
		vtIdx = 2
	case 0:
		vtIdx = 3
	default:
		return nil, ErrIllegalWindProduct
	}

	product := windMatrix[paIdx][vtIdx]
	if product == -1 {
		return nil, ErrIllegalWindProduct
	}

	anchor := apduDate(reception, hdr)
	validTime, err := fbtime.DayHourMinute(anchor, validTimeStr)
	if err != nil {
		return nil, err
	}

	var prodName string
	var issuedOffset, modelOffset, beginOffset, endOffset time.Duration
	switch product {
	case 6:
		prodName = "WINDS_06_HR"
		issuedOffset, modelOffset, beginOffset, endOffset = -4*time.Hour, -6*time.Hour, -4*time.Hour, 3*time.Hour
	case 12:
		prodName = "WINDS_12_HR"
		issuedOffset, modelOffset, beginOffset, endOffset = -10*time.Hour, -12*time.Hour, -3*time.Hour, 6*time.Hour
	case 24:
		prodName = "WINDS_24_HR"
		issuedOffset, modelOffset, beginOffset, endOffset = -22*time.Hour, -24*time.Hour, -6*time.Hour, 6*time.Hour
	default:
		return nil, ErrIllegalWindProduct
	}

	modelRun := validTime.Add(modelOffset)
	forUseBegin := validTime.Add(beginOffset)
	forUseEnd := validTime.Add(endOffset)

	// The computed issued day locates the right calendar date; the
	// exact APDU hour/minute replaces the derived one since products
	// aren't made available near 0000Z, so the day never shifts.
	issuedDay := validTime.Add(issuedOffset)
	issued := time.Date(issuedDay.Year(), issuedDay.Month(), issuedDay.Day(), hdr.Hour, hdr.Minute, 0, 0, time.UTC)

	expiration := forUseEnd
	if prodName == "WINDS_06_HR" {
		// The standard requires keeping the last 6-hour forecast
		// around until the next one arrives.
		expiration = forUseEnd.AddDate(0, 0, 1)
	}

	return &Winds{
		Base:           Base{Type: prodName, UniqueName: location, ExpirationTime: expiration},
		Location:       location,
		Contents:       body,
		IssuedTime:     issued,
		ValidTime:      validTime,
		ModelRunTime:   modelRun,
		ForUseFromTime: forUseBegin,
		ForUseToTime:   forUseEnd,
	}, nil
}

func pirep(contents string, reception time.Time, hdr apdu.Header, cfg config.Config) (*Pirep, error) {
	m := pirepRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, ErrRegexDidNotMatch
	}

	station := m[4]
	reportType := m[5]
	uniqueName := reportType + station + strings.ReplaceAll(m[6], " ", "")

	fieldsDefined := m[6]
	for i, name := range pirepFieldsFrom {
		fieldsDefined = strings.ReplaceAll(fieldsDefined, name, pirepFieldsTo[i])
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(fieldsDefined, "~") {
		x := strings.TrimSpace(part)
		if x == "" {
			continue
		}
		if len(x) < 2 {
			return nil, ErrPirepFieldTooSmall
		}
		fields[strings.ToLower(x[0:2])] = strings.TrimSpace(x[2:])
	}

	reportTime, err := fbtime.DayHourMinute(apduDate(reception, hdr), m[3])
	if err != nil {
		return nil, err
	}

	// Basing expiration on report time is more accurate, but the
	// standard mandates at least the configured minutes from last
	// reception.
	expiration := reception.Add(cfg.PirepExpire)
	if cfg.PirepUseReportTimeToExpire {
		expiration = reportTime.Add(cfg.PirepExpire)
	}

	return &Pirep{
		Base:       Base{Type: "PIREP", UniqueName: uniqueName, ExpirationTime: expiration},
		ReportType: reportType,
		Station:    station,
		Contents:   contents,
		ReportTime: reportTime,
		Fields:     fields,
	}, nil
}
