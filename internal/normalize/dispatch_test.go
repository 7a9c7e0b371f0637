package normalize

import (
	"testing"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/globalblock"
	"fisb/internal/config"
	"fisb/internal/reconstruct"
)

func TestTwgoDispatchNotam(t *testing.T) {
	hdr := apdu.Header{}
	reception := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	m := reconstruct.Matched{ProductID: 8, Text: textRecord(0, "anything")}

	got, err := Twgo(m, hdr, "KXYZ", reception, config.Default())
	if err != nil {
		t.Fatalf("Twgo returned error: %v", err)
	}
	if _, ok := got.(*CancelNotam); !ok {
		t.Fatalf("got %T, want *CancelNotam", got)
	}
}

func TestTwgoDispatchUnknownProduct(t *testing.T) {
	m := reconstruct.Matched{ProductID: 999}
	_, err := Twgo(m, apdu.Header{}, "KXYZ", time.Now(), config.Default())
	if err != ErrBadProductID {
		t.Fatalf("err = %v, want ErrBadProductID", err)
	}
}

func TestGlobalBlockDispatch(t *testing.T) {
	a := &apdu.APDU{
		Header: apdu.Header{ProductID: 63, Hour: 14, Minute: 20},
		Kind:   apdu.KindGlobalBlock,
		GlobalBlock: &globalblock.Block{
			BlockNumber: 276640,
			ElementID:   1,
			ScaleFactor: globalblock.ScaleHigh,
			Bins:        "0123456789",
		},
	}
	reception := time.Date(2026, 3, 15, 14, 21, 0, 0, time.UTC)

	msgs, err := GlobalBlock(a, reception, config.Default())
	if err != nil {
		t.Fatalf("GlobalBlock returned error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != "NEXRAD_REGIONAL" {
		t.Fatalf("msgs = %+v, want one NEXRAD_REGIONAL message", msgs)
	}
}

func TestGlobalBlockDispatchWrongKind(t *testing.T) {
	a := &apdu.APDU{Header: apdu.Header{ProductID: 413}, Kind: apdu.KindDLACText}
	_, err := GlobalBlock(a, time.Now(), config.Default())
	if err != ErrBadProductID {
		t.Fatalf("err = %v, want ErrBadProductID", err)
	}
}
