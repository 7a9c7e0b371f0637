package normalize

import (
	"testing"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/config"
)

func TestDLACTextMetar(t *testing.T) {
	hdr := apdu.Header{Hour: 18, Minute: 5}
	reception := time.Date(2026, 3, 15, 18, 6, 0, 0, time.UTC)
	cfg := config.Default()

	got, err := DLACText("METAR KJFK 151851Z 18010KT 10SM FEW050 22/14 A3000   ", hdr, reception, cfg)
	if err != nil {
		t.Fatalf("DLACText returned error: %v", err)
	}

	m, ok := got.(*Metar)
	if !ok {
		t.Fatalf("got %T, want *Metar", got)
	}
	if m.Location != "KJFK" {
		t.Errorf("Location = %q, want KJFK", m.Location)
	}
	wantObs := time.Date(2026, 3, 15, 18, 51, 0, 0, time.UTC)
	if !m.ObservationTime.Equal(wantObs) {
		t.Errorf("ObservationTime = %v, want %v", m.ObservationTime, wantObs)
	}
	wantExp := wantObs.Add(cfg.MetarExpire)
	if !m.ExpirationTime.Equal(wantExp) {
		t.Errorf("ExpirationTime = %v, want %v", m.ExpirationTime, wantExp)
	}
}

func TestDLACTextTaf(t *testing.T) {
	hdr := apdu.Header{Hour: 17, Minute: 50}
	reception := time.Date(2026, 3, 15, 17, 51, 0, 0, time.UTC)
	cfg := config.Default()

	got, err := DLACText("TAF KJFK 151740Z 1518/1624 18012KT P6SM SCT050", hdr, reception, cfg)
	if err != nil {
		t.Fatalf("DLACText returned error: %v", err)
	}

	tf, ok := got.(*Taf)
	if !ok {
		t.Fatalf("got %T, want *Taf", got)
	}
	if tf.Location != "KJFK" {
		t.Errorf("Location = %q, want KJFK", tf.Location)
	}
	wantBegin := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	if !tf.ValidPeriodBeginTime.Equal(wantBegin) {
		t.Errorf("ValidPeriodBeginTime = %v, want %v", tf.ValidPeriodBeginTime, wantBegin)
	}
	if !tf.ExpirationTime.Equal(tf.ValidPeriodEndTime) {
		t.Errorf("ExpirationTime should equal ValidPeriodEndTime")
	}
}

func TestDLACTextWindsSixHour(t *testing.T) {
	hdr := apdu.Header{Hour: 2, Minute: 3}
	reception := time.Date(2026, 3, 15, 2, 3, 0, 0, time.UTC)

	got, err := DLACText("WINDS FOT 150600Z\nFL390 3412-54 02 9900+07", hdr, reception, config.Default())
	if err != nil {
		t.Fatalf("DLACText returned error: %v", err)
	}

	w, ok := got.(*Winds)
	if !ok {
		t.Fatalf("got %T, want *Winds", got)
	}
	if w.Type != "WINDS_06_HR" {
		t.Errorf("Type = %q, want WINDS_06_HR", w.Type)
	}
	wantValid := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	if !w.ValidTime.Equal(wantValid) {
		t.Errorf("ValidTime = %v, want %v", w.ValidTime, wantValid)
	}
	wantIssued := time.Date(2026, 3, 15, 2, 3, 0, 0, time.UTC)
	if !w.IssuedTime.Equal(wantIssued) {
		t.Errorf("IssuedTime = %v, want %v", w.IssuedTime, wantIssued)
	}
	if w.Contents != "FL390 3412-54 02 9900+07" {
		t.Errorf("Contents = %q, want header line stripped", w.Contents)
	}
	// 6-hour forecasts stay valid an extra day past for_use_to.
	wantExp := w.ForUseToTime.AddDate(0, 0, 1)
	if !w.ExpirationTime.Equal(wantExp) {
		t.Errorf("ExpirationTime = %v, want %v", w.ExpirationTime, wantExp)
	}
}

func TestDLACTextWindsIllegalHour(t *testing.T) {
	hdr := apdu.Header{Hour: 4, Minute: 0}
	reception := time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)

	_, err := DLACText("WINDS FOT 151000Z\nFL390 3412-54", hdr, reception, config.Default())
	if err != ErrIllegalWindProduct {
		t.Fatalf("err = %v, want ErrIllegalWindProduct", err)
	}
}

func TestDLACTextPirep(t *testing.T) {
	hdr := apdu.Header{Hour: 20, Minute: 10}
	reception := time.Date(2026, 3, 15, 20, 10, 0, 0, time.UTC)
	cfg := config.Default()
	cfg.PirepUseReportTimeToExpire = true

	got, err := DLACText("PIREP INTN 152003Z FOT UA /OV INT 3N /TM 2003 /FL080 /TP B737 /RM BUMPY", hdr, reception, cfg)
	if err != nil {
		t.Fatalf("DLACText returned error: %v", err)
	}

	p, ok := got.(*Pirep)
	if !ok {
		t.Fatalf("got %T, want *Pirep", got)
	}
	if p.Station != "FOT" {
		t.Errorf("Station = %q, want FOT", p.Station)
	}
	if p.ReportType != "UA" {
		t.Errorf("ReportType = %q, want UA", p.ReportType)
	}
	if p.Fields["ov"] != "INT 3N" {
		t.Errorf(`Fields["ov"] = %q, want "INT 3N"`, p.Fields["ov"])
	}
	if p.Fields["fl"] != "080" {
		t.Errorf(`Fields["fl"] = %q, want "080"`, p.Fields["fl"])
	}
	if p.Fields["rm"] != "BUMPY" {
		t.Errorf(`Fields["rm"] = %q, want "BUMPY"`, p.Fields["rm"])
	}
}

func TestDLACTextUnknown(t *testing.T) {
	hdr := apdu.Header{}
	_, err := DLACText("GARBAGE NOT A REAL MESSAGE", hdr, time.Now(), config.Default())
	if err != ErrUnknown413Message {
		t.Fatalf("err = %v, want ErrUnknown413Message", err)
	}
}
