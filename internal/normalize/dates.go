package normalize

import (
	"regexp"
	"strings"
	"time"

	"fisb/internal/fbtime"
)

// cleanFAAText trims the trailing whitespace padding FAA text fields
// arrive with, collapsing trailing blank lines the way the original's
// cleanFAAText does.
func cleanFAAText(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}

// componentsToIso8601 builds a UTC instant from a full year and
// month/day/hour/minute components, with no nearest-candidate search.
func componentsToIso8601(year, month, day, hour, minute int) time.Time {
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
}

// notamTimeToIso8601 converts a NOTAM "yymmddhhmm" string (a two-digit
// year followed by month/day/hour/minute) into a UTC instant.
func notamTimeToIso8601(currentYear int, faaStr string) (time.Time, error) {
	if len(faaStr) != 10 {
		return time.Time{}, ErrRegexDidNotMatch
	}
	twoDigitYear, err := atoi(faaStr[0:2])
	if err != nil {
		return time.Time{}, err
	}
	month, err := atoi(faaStr[2:4])
	if err != nil {
		return time.Time{}, err
	}
	day, err := atoi(faaStr[4:6])
	if err != nil {
		return time.Time{}, err
	}
	hour, err := atoi(faaStr[6:8])
	if err != nil {
		return time.Time{}, err
	}
	minute, err := atoi(faaStr[8:10])
	if err != nil {
		return time.Time{}, err
	}

	year, err := fbtime.DoubleDigitYear(currentYear, twoDigitYear)
	if err != nil {
		return time.Time{}, err
	}
	return componentsToIso8601(year, month, day, hour, minute), nil
}

func atoi(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrRegexDidNotMatch
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// notamTimesRE extracts the "start-end" NOTAM validity pair embedded
// in NOTAM body text: each half is either a yymmddhhmm timestamp (with
// month/day/hour/minute digit-position constraints) or the literal
// PERM.
var notamTimesRE = regexp.MustCompile(`(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d)-(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d|PERM)`)
