package fbtime

import (
	"testing"
	"time"
)

func TestComponentsToIso8601ReferencedPicksClosestYear(t *testing.T) {
	ref := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	got := ComponentsToIso8601Referenced(ref, 12, 31, 23, 59)
	if got.Year() != 2023 {
		t.Fatalf("got year %d, want 2023", got.Year())
	}
}

func TestFromApduHourMinutesPicksNearestDay(t *testing.T) {
	current := time.Date(2024, time.March, 10, 23, 50, 0, 0, time.UTC)
	got := FromApduHourMinutes(current, 0, 5, true)
	if got.Day() != 11 {
		t.Fatalf("got day %d, want 11 (next day)", got.Day())
	}
}

func TestDayHourMinuteSameDay(t *testing.T) {
	current := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	got, err := DayHourMinute(current, "101230")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 12 || got.Minute() != 30 {
		t.Fatalf("got %v, want 12:30", got)
	}
}

func TestDayHourMinuteWrapsMonth(t *testing.T) {
	current := time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC)
	got, err := DayHourMinute(current, "020000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Month() != time.April || got.Day() != 2 {
		t.Fatalf("got %v, want April 2", got)
	}
}

func TestDayHourMinuteHour24RollsToNextDay(t *testing.T) {
	current := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	got, err := DayHourMinute(current, "1024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Day() != 11 || got.Hour() != 0 {
		t.Fatalf("got %v, want March 11 00:00", got)
	}
}

func TestSingleDigitYear(t *testing.T) {
	cases := []struct{ supplied, want int }{
		{9, 2019}, {6, 2016}, {1, 2021},
	}
	for _, c := range cases {
		got, err := SingleDigitYear(2019, c.supplied)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != c.want {
			t.Errorf("SingleDigitYear(2019, %d) = %d, want %d", c.supplied, got, c.want)
		}
	}
}

func TestDoubleDigitYear(t *testing.T) {
	cases := []struct{ supplied, want int }{
		{19, 2019}, {10, 2010}, {30, 2030},
	}
	for _, c := range cases {
		got, err := DoubleDigitYear(2019, c.supplied)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != c.want {
			t.Errorf("DoubleDigitYear(2019, %d) = %d, want %d", c.supplied, got, c.want)
		}
	}
}
