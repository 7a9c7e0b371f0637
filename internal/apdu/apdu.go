package apdu

import (
	"fmt"

	"fisb/internal/apdu/dlac"
	"fisb/internal/apdu/globalblock"
	"fisb/internal/apdu/twgo"
)

// PayloadKind identifies which concrete payload an APDU carries.
type PayloadKind int

const (
	KindDLACText PayloadKind = iota
	KindTWGO
	KindGlobalBlock
	KindSegment // s_flag=1: payload is a raw segment awaiting reconstruction
)

// APDU is a fully decoded APDU frame: the normalized header plus its
// dispatched payload. When SFlag is set, the DLACText/TWGO/GlobalBlock
// payload fields are left empty and SegmentHex
// carries the raw remaining bytes for the reconstructor (spec §4.3).
type APDU struct {
	Header
	Kind       PayloadKind
	DLACText   string
	TWGO       *twgo.Record
	GlobalBlock *globalblock.Block
	SegmentHex string
}

// knownProductIDs is the validity list from decodeApduFrame: any other
// product id fails the frame outright.
var knownProductIDs = map[int]bool{
	413: true,
	8:   true, 11: true, 12: true, 13: true, 14: true, 15: true, 16: true, 17: true,
	63: true, 64: true, 70: true, 71: true, 84: true, 90: true, 91: true, 103: true,
}

func isTWGO(productID int) bool {
	switch productID {
	case 8, 11, 12, 13, 14, 15, 16, 17:
		return true
	}
	return false
}

func isGlobalBlock(productID int) bool {
	switch productID {
	case 63, 64, 70, 71, 84, 90, 91, 103:
		return true
	}
	return false
}

// Decode decodes the APDU frame payload ba. blockSUA, when true, causes
// product id 13 (SUA) to be rejected rather than decoded, matching the
// original's cfg.BLOCK_SUA_MESSAGES gate.
func Decode(ba []byte, blockSUA bool) (*APDU, error) {
	hdr, err := DecodeHeader(ba)
	if err != nil {
		return nil, err
	}

	if !knownProductIDs[hdr.ProductID] {
		return nil, fmt.Errorf("apdu: unknown product id %d", hdr.ProductID)
	}
	if hdr.ProductID == 13 && blockSUA {
		return nil, nil
	}

	a := &APDU{Header: hdr}

	if hdr.SFlag == 1 {
		if hdr.PayloadStart > len(ba) {
			return nil, fmt.Errorf("apdu: segmented payload start %d beyond frame of %d bytes", hdr.PayloadStart, len(ba))
		}
		a.Kind = KindSegment
		a.SegmentHex = fmt.Sprintf("%x", ba[hdr.PayloadStart:])
		return a, nil
	}

	payload := ba[hdr.PayloadStart:]

	switch {
	case hdr.ProductID == 413:
		a.Kind = KindDLACText
		a.DLACText = dlac.Decode(payload, 0, len(payload))
	case isTWGO(hdr.ProductID):
		a.Kind = KindTWGO
		rec, err := twgo.Decode(payload, hdr.ProductID)
		if err != nil {
			return nil, err
		}
		a.TWGO = rec
	case isGlobalBlock(hdr.ProductID):
		a.Kind = KindGlobalBlock
		blk, err := globalblock.Decode(payload, hdr.ProductID)
		if err != nil {
			return nil, err
		}
		a.GlobalBlock = blk
	}

	return a, nil
}
