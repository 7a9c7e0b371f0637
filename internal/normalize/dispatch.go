package normalize

import (
	"time"

	"fisb/internal/apdu"
	"fisb/internal/config"
	"fisb/internal/reconstruct"
)

// Twgo dispatches a matched TWGO message (text half, graphics half, or
// both) to its product-family converter by product id.
func Twgo(m reconstruct.Matched, hdr apdu.Header, station string, reception time.Time, cfg config.Config) (any, error) {
	switch m.ProductID {
	case 8, 16, 17:
		if m.Text == nil {
			return nil, ErrIllegalTwgoMessage
		}
		return NotamFamily(m.Text, m.Graphics, m.ProductID, hdr, station, reception, cfg)
	case 11, 12, 15:
		if m.Text == nil {
			return nil, ErrIllegalTwgoMessage
		}
		return AirmetFamily(m.Text, m.Graphics, m.ProductID, hdr, station, reception, cfg)
	case 13:
		if m.Text == nil || len(m.Text.TextRecords) == 0 {
			return nil, ErrSua
		}
		return SuaFamily(m.Text.TextRecords[0], reception)
	case 14:
		if m.Graphics == nil {
			return nil, ErrGAirmetMessage
		}
		return GairmetFamily(m.Graphics, hdr, station, reception, cfg)
	default:
		return nil, ErrBadProductID
	}
}

// GlobalBlock dispatches a decoded global-block APDU (product ids 63,
// 64, 70, 71, 84, 90, 91, 103) straight to BlockFamily. Unlike the
// TWGO families, these never need text/graphics matching: every APDU
// carries a complete, self-sufficient block reference.
func GlobalBlock(a *apdu.APDU, reception time.Time, cfg config.Config) ([]*Block, error) {
	if a.Kind != apdu.KindGlobalBlock || a.GlobalBlock == nil {
		return nil, ErrBadProductID
	}
	return BlockFamily(a.GlobalBlock, a.ProductID, a.Header, reception, cfg)
}
