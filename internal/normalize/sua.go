package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fisb/internal/apdu/twgo"
)

var suaRE = regexp.MustCompile(`^SUA ([0-3]\d[0-2]\d[0-5]\d) (.+)`)

// Sua is a normalized Special Use Airspace message (product id 13).
// The FAA has recommended against using these in favor of NOTAM-TMOA/
// NOTAM-TRA; the pipeline still decodes them since some providers
// still send them.
type Sua struct {
	Base
	AirspaceName    string    `json:"airspace_name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ScheduleID      string    `json:"schedule_id"`
	AirspaceID      string    `json:"airspace_id"`
	Status          string    `json:"status"`
	AirspaceType    string    `json:"airspace_type"`
	LowAltitude     int       `json:"low_altitude"`
	HighAltitude    int       `json:"high_altitude"`
	SeparationRule  string    `json:"separation_rule"`
	ShapeDefined    string    `json:"shape_defined"`
	NfdcID          string    `json:"nfdc_id,omitempty"`
	NfdcName        string    `json:"nfdc_name,omitempty"`
	DafifID         string    `json:"dafif_id,omitempty"`
	DafifName       string    `json:"dafif_name,omitempty"`
}

// SuaFamily normalizes product id 13 (flat, pipe-delimited Special Use
// Airspace records). A cancellation (report_status 0) has never been
// observed in the field and is treated as an error, matching the
// original's behavior.
func SuaFamily(rec twgo.TextRecord, reception time.Time) (*Sua, error) {
	if rec.ReportStatus == 0 {
		return nil, ErrSua
	}

	reportID := fmt.Sprintf("%d-%d", rec.ReportYear, rec.ReportNumber)

	fields := strings.Split(strings.TrimRight(rec.Text, " \t\r\n"), "|")
	if len(fields) < 11 {
		return nil, ErrSua
	}

	m := suaRE.FindStringSubmatch(fields[0])
	if m == nil {
		return nil, ErrSua
	}
	scheduleID := m[2]

	start, err := notamTimeToIso8601(reception.Year(), fields[5])
	if err != nil {
		return nil, err
	}
	end, err := notamTimeToIso8601(reception.Year(), fields[6])
	if err != nil {
		return nil, err
	}

	low, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, ErrSua
	}
	high, err := strconv.Atoi(fields[8])
	if err != nil {
		return nil, ErrSua
	}

	separationRule := fields[9]
	if separationRule == "" || separationRule == " " {
		separationRule = "U"
	}

	msg := &Sua{
		Base:           Base{Type: "SUA", UniqueName: reportID, ExpirationTime: end},
		AirspaceName:   fields[4],
		StartTime:      start,
		EndTime:        end,
		ScheduleID:     scheduleID,
		AirspaceID:     fields[1],
		Status:         fields[2],
		AirspaceType:   fields[3],
		LowAltitude:    low * 100,
		HighAltitude:   high * 100,
		SeparationRule: separationRule,
		ShapeDefined:   fields[10],
	}

	// Entries 11-14 are either all present or all absent.
	if len(fields) > 11 && fields[11] != "" {
		msg.NfdcID = fields[11]
		if len(fields) > 12 {
			msg.NfdcName = fields[12]
		}
		if len(fields) > 13 {
			msg.DafifID = fields[13]
		}
		if len(fields) > 14 {
			msg.DafifName = fields[14]
		}
	}

	return msg, nil
}
