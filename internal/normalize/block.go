package normalize

import (
	"fmt"
	"strings"
	"time"

	"fisb/internal/apdu"
	"fisb/internal/apdu/globalblock"
	"fisb/internal/config"
	"fisb/internal/fbtime"
)

// Block is a normalized image-tile message: one bin array (or an
// all-zero placeholder for an empty block) addressed by alternate
// block number. Unlike NOTAM/AIRMET/CRL traffic, these are fed
// through the deduplicator downstream so an unchanged retransmission
// from a second receiving station doesn't get stored twice.
type Block struct {
	Base
	AltBlockNumber int    `json:"alt_bn"`
	ScaleFactor    int    `json:"scale_factor"`
	Bins           string `json:"bins"`

	// Exactly one of these is set, named by getProductSpecificInfo's
	// dateLabel: observation_time for NEXRAD/lightning, valid_time for
	// the forecast products (icing/turbulence/cloud tops).
	ObservationTime *time.Time `json:"observation_time,omitempty"`
	ValidTime       *time.Time `json:"valid_time,omitempty"`
}

// alternateBlockNumber reinterprets a standard FIS-B block number
// (which only increases monotonically around the globe) into a
// row/column pair: row is 0-based latitude band from the equator,
// column is 0-based longitude band from the prime meridian, packed as
// row*1000+column.
func alternateBlockNumber(blockNumber, scaleFactor int) int {
	blockOffset := 0
	divFactor := 1

	switch scaleFactor {
	case 1:
		blockOffset = 1800
		divFactor = 5
	case 2:
		blockOffset = 3600
		divFactor = 9
	}

	row := (blockNumber - blockOffset) / (blockOffset + 450)
	col := (blockNumber - blockOffset) % (blockOffset + 450)
	col /= divFactor

	return row*1000 + col
}

// normalizeBins splits a block's 128-byte bin string into a left and
// right half above 60 degrees latitude, where FIS-B only transmits
// even-numbered blocks and each one stands in for two. Below that
// latitude it returns the bins unchanged.
func normalizeBins(altBlockNumber, scaleFactor int, bins string) (above60 bool, out []string) {
	altRow := altBlockNumber / 1000

	switch scaleFactor {
	case 0:
		if altRow < 900 {
			return false, []string{bins}
		}
	case 1:
		if altRow < 180 {
			return false, []string{bins}
		}
	case 2:
		if altRow < 100 {
			return false, []string{bins}
		}
	}

	if bins == "0" {
		return true, []string{"0"}
	}

	var left, right strings.Builder
	for i := 0; i < 4; i++ {
		for j := 0; j < 16; j++ {
			l := bins[(i*32)+j+16]
			r := bins[(i*32)+j]
			left.WriteByte(l)
			left.WriteByte(l)
			right.WriteByte(r)
			right.WriteByte(r)
		}
	}
	return true, []string{left.String(), right.String()}
}

// blockProductInfo is what getProductSpecificInfo returns: everything
// about a product id that doesn't depend on the actual block data.
type blockProductInfo struct {
	expire      time.Duration
	productName string
	productAbbr string
	validLabel  bool // true: dateLabel is valid_time, false: observation_time
}

func blockProductSpecificInfo(productID int, altitudeLevel int, cfg config.Config) (blockProductInfo, error) {
	switch productID {
	case 63:
		return blockProductInfo{cfg.RegionalNexradExpire, "NEXRAD_REGIONAL", "NR", false}, nil
	case 64:
		return blockProductInfo{cfg.ConusNexradExpire, "NEXRAD_CONUS", "NC", false}, nil
	case 90, 91:
		return blockProductInfo{cfg.TurbulenceExpire, fmt.Sprintf("TURBULENCE_%05d", altitudeLevel), fmt.Sprintf("T%d", altitudeLevel), true}, nil
	case 70, 71:
		return blockProductInfo{cfg.IcingExpire, fmt.Sprintf("ICING_%05d", altitudeLevel), fmt.Sprintf("I%d", altitudeLevel), true}, nil
	case 84:
		return blockProductInfo{cfg.CloudTopsExpire, "CLOUD_TOPS", "CT", true}, nil
	case 103:
		return blockProductInfo{cfg.LightningExpire, "LIGHTNING", "LGT", false}, nil
	default:
		return blockProductInfo{}, ErrBadProductID
	}
}

func newBlockMessage(info blockProductInfo, eventDate, expiration time.Time, altBlockNumber, scaleFactor int, bins string) *Block {
	msg := &Block{
		Base: Base{
			Type:           info.productName,
			UniqueName:     info.productAbbr + "-" + eventDate.Format(time.RFC3339),
			ExpirationTime: expiration,
		},
		AltBlockNumber: altBlockNumber,
		ScaleFactor:    scaleFactor,
		Bins:           bins,
	}
	if info.validLabel {
		msg.ValidTime = &eventDate
	} else {
		msg.ObservationTime = &eventDate
	}
	return msg
}

// emptyBlockMessages expands a run of empty blocks (one bit per block,
// starting from the block this message refers to) into one message
// per empty block, each holding an all-zero bin array.
func emptyBlockMessages(blockNumber, scaleFactor int, emptyBlocks string, info blockProductInfo, eventDate, expiration time.Time) []*Block {
	var msgs []*Block
	bits := "1" + emptyBlocks
	emptyBins := strings.Repeat("\x00", 128)

	current := blockNumber
	incr := 1
	switch scaleFactor {
	case 1:
		incr = 5
	case 2:
		incr = 9
	}

	for _, b := range bits {
		if b == '1' {
			altBlockNumber := alternateBlockNumber(current, scaleFactor)
			above60, _ := normalizeBins(altBlockNumber, scaleFactor, "0")

			msgs = append(msgs, newBlockMessage(info, eventDate, expiration, altBlockNumber, scaleFactor, emptyBins))
			if above60 {
				msgs = append(msgs, newBlockMessage(info, eventDate, expiration, altBlockNumber+1, scaleFactor, emptyBins))
			}
		}

		if current >= 405000 && scaleFactor == 1 {
			current += 2
		} else {
			current += incr
		}
	}

	return msgs
}

// BlockFamily normalizes one decoded global-block APDU (NEXRAD
// regional/CONUS, icing, turbulence, cloud tops, lightning) into one
// or more Block messages: a run of messages for an empty-block bitmap,
// or one or two (above 60 degrees latitude) for a populated block.
func BlockFamily(blk *globalblock.Block, productID int, hdr apdu.Header, reception time.Time, cfg config.Config) ([]*Block, error) {
	eventDate := fbtime.FromApduHourMinutes(reception, hdr.Hour, hdr.Minute, true)

	info, err := blockProductSpecificInfo(productID, blk.AltitudeLevel, cfg)
	if err != nil {
		return nil, err
	}
	expiration := eventDate.Add(info.expire)

	if blk.ElementID == 0 {
		return emptyBlockMessages(blk.BlockNumber, blk.ScaleFactor, blk.EmptyBlocks, info, eventDate, expiration), nil
	}

	altBlockNumber := alternateBlockNumber(blk.BlockNumber, blk.ScaleFactor)
	above60, bins := normalizeBins(altBlockNumber, blk.ScaleFactor, blk.Bins)

	msgs := []*Block{newBlockMessage(info, eventDate, expiration, altBlockNumber, blk.ScaleFactor, bins[0])}
	if above60 {
		msgs = append(msgs, newBlockMessage(info, eventDate, expiration, altBlockNumber+1, blk.ScaleFactor, bins[1]))
	}
	return msgs, nil
}
