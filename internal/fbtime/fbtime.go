// Package fbtime reconstructs full dates from the partial date
// fragments FIS-B messages carry: APDU headers give only hour/minute
// (or month/day/hour/minute), and NOTAM/TFR text gives a FAA six-digit
// "ddhhmm" string or a one/two-digit year. Every reconstruction here
// picks whichever nearby calendar date best explains the fragment,
// since FIS-B never sends a message that is more than a few days old
// or from more than a few years in the future.
//
// Grounded on fisb/level2/utilities.py's date family:
// componentsToIso8601Referenced, iso8601FromApduHourMins,
// dayHourMinToIso8601, singleDigitYear, and doubleDigitYear.
package fbtime

import (
	"fmt"
	"time"
)

// ComponentsToIso8601Referenced picks whichever of (year-1, year,
// year+1) combined with month/day/hour/minute lands closest to
// reference, where year is reference's own year. Used for start/stop
// times near a year boundary.
func ComponentsToIso8601Referenced(reference time.Time, month, day, hour, minute int) time.Time {
	year := reference.Year()

	candidates := []time.Time{
		time.Date(year-1, time.Month(month), day, hour, minute, 0, 0, time.UTC),
		time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC),
		time.Date(year+1, time.Month(month), day, hour, minute, 0, 0, time.UTC),
	}

	best := candidates[0]
	bestDiff := abs(reference.Sub(best))
	for _, c := range candidates[1:] {
		if d := abs(reference.Sub(c)); d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best
}

// FromApduHourMinutes picks whichever of (current day, +1, -1) paired
// with apduHour/apduMinute lands closest to current, breaking a tie
// per favorPast.
func FromApduHourMinutes(current time.Time, apduHour, apduMinute int, favorPast bool) time.Time {
	apduNow := time.Date(current.Year(), current.Month(), current.Day(), apduHour, apduMinute, 0, 0, time.UTC)
	apduPlus := apduNow.AddDate(0, 0, 1)
	apduMinus := apduNow.AddDate(0, 0, -1)

	diffNow := abs(current.Sub(apduNow))
	diffPlus := abs(current.Sub(apduPlus))
	diffMinus := abs(current.Sub(apduMinus))

	min := diffNow
	winner := apduNow
	if diffPlus < min || (diffPlus == min && !favorPast) {
		min, winner = diffPlus, apduPlus
	}
	if diffMinus < min || (diffMinus == min && favorPast) {
		winner = apduMinus
	}
	return winner
}

// ErrOutOfRange is returned when a FAA "ddhhmm" string can't be
// matched to a day within 10 days of current.
var ErrOutOfRange = fmt.Errorf("fbtime: FAA date out of range")

// DayHourMinute converts a FAA "ddhhmm" (or, with no minute, "ddhh")
// string into a full date, searching up to 10 days forward and
// backward from current for the day of month the string names. An FAA
// hour of 24 means midnight of the following day.
func DayHourMinute(current time.Time, faaStr string) (time.Time, error) {
	if len(faaStr) != 4 && len(faaStr) != 6 {
		return time.Time{}, fmt.Errorf("fbtime: bad FAA date string %q", faaStr)
	}

	var faaDay, faaHour, faaMinute int
	if _, err := fmt.Sscanf(faaStr[0:2], "%d", &faaDay); err != nil {
		return time.Time{}, err
	}
	if _, err := fmt.Sscanf(faaStr[2:4], "%d", &faaHour); err != nil {
		return time.Time{}, err
	}
	if len(faaStr) == 6 {
		if _, err := fmt.Sscanf(faaStr[4:6], "%d", &faaMinute); err != nil {
			return time.Time{}, err
		}
	}

	currentDate := time.Date(current.Year(), current.Month(), current.Day(), 0, 0, 0, 0, time.UTC)

	apply := func(d time.Time, hour int) time.Time {
		if hour == 24 {
			return d.AddDate(0, 0, 1)
		}
		return d
	}

	if faaDay == currentDate.Day() {
		d := apply(currentDate, faaHour)
		h := faaHour
		if h == 24 {
			h = 0
		}
		return time.Date(d.Year(), d.Month(), d.Day(), h, faaMinute, 0, 0, time.UTC), nil
	}

	forward, backward := currentDate, currentDate
	for i := 0; i < 10; i++ {
		forward = forward.AddDate(0, 0, 1)
		if forward.Day() == faaDay {
			d := apply(forward, faaHour)
			h := faaHour
			if h == 24 {
				h = 0
			}
			return time.Date(d.Year(), d.Month(), d.Day(), h, faaMinute, 0, 0, time.UTC), nil
		}

		backward = backward.AddDate(0, 0, -1)
		if backward.Day() == faaDay {
			d := apply(backward, faaHour)
			h := faaHour
			if h == 24 {
				h = 0
			}
			return time.Date(d.Year(), d.Month(), d.Day(), h, faaMinute, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, ErrOutOfRange
}

// SingleDigitYear expands a one-digit year (0-9) into a full year
// close to currentYear: up to 4 years in the future or 5 in the past.
func SingleDigitYear(currentYear, suppliedYear int) (int, error) {
	if suppliedYear < 0 || suppliedYear > 9 {
		return 0, fmt.Errorf("fbtime: expecting single digit year 0-9, got %d", suppliedYear)
	}
	currentDigit := currentYear % 10
	diff := suppliedYear - currentDigit

	switch {
	case diff >= 0 && diff < 5:
		return currentYear + diff, nil
	case diff <= -6:
		return currentYear + (diff + 10), nil
	case diff > -6 && diff < 0:
		return currentYear + diff, nil
	default: // diff >= 5
		return currentYear - (10 - diff), nil
	}
}

// DoubleDigitYear expands a two-digit year (0-99) into a full year
// close to currentYear: up to 49 years in the future or 50 in the past.
func DoubleDigitYear(currentYear, suppliedYear int) (int, error) {
	if suppliedYear < 0 || suppliedYear > 99 {
		return 0, fmt.Errorf("fbtime: expecting two digit year 0-99, got %d", suppliedYear)
	}
	currentDigits := currentYear % 100
	diff := suppliedYear - currentDigits

	switch {
	case diff >= 0 && diff < 50:
		return currentYear + diff, nil
	case diff <= -51:
		return currentYear + (diff + 100), nil
	case diff > -51 && diff < 0:
		return currentYear + diff, nil
	default: // diff >= 50
		return currentYear - (100 - diff), nil
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
