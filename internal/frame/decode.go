package frame

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSkip is returned by ParseLine for lines that carry no packet at all
// (comments, blank lines, or UAT ADS-B traffic) and should simply be
// skipped by the caller rather than treated as a decode failure.
var ErrSkip = fmt.Errorf("frame: line skipped")

const geo24Bits = 360.0 / (1 << 24)

// ParseLine parses one line of demodulator output into a Packet.
//
// Lines beginning with '#' or empty lines are comments/blanks and are
// ignored. Lines beginning with '-' carry UAT ADS-B traffic, not FIS-B,
// and are ignored. Any other line must begin with '+', carry a 432-byte
// hex payload, and end with a ';'-delimited metadata tail containing at
// minimum a 't=<epoch_seconds>' field.
func ParseLine(line string, detailed bool) (*Packet, error) {
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
		return nil, ErrSkip
	}
	if !strings.HasPrefix(line, "+") {
		return nil, ErrSkip
	}

	semi := strings.IndexByte(line, ';')
	if semi < 0 {
		return nil, fmt.Errorf("frame: missing metadata tail")
	}

	rcvd := time.Now().UTC()
	if idx := strings.Index(line, ";t="); idx != -1 {
		tail := line[idx+3:]
		tail = strings.TrimSuffix(tail, ";")
		if end := strings.IndexByte(tail, ';'); end != -1 {
			tail = tail[:end]
		}
		secs, err := strconv.ParseFloat(tail, 64)
		if err != nil {
			return nil, fmt.Errorf("frame: bad reception time: %w", err)
		}
		whole := int64(secs)
		frac := secs - float64(whole)
		rcvd = time.Unix(whole, int64(frac*1e9)).UTC()
	}

	ba, err := hex.DecodeString(line[1:semi])
	if err != nil {
		return nil, fmt.Errorf("frame: bad hex payload: %w", err)
	}
	if len(ba) != 432 {
		return nil, fmt.Errorf("frame: expected 432 bytes, got %d", len(ba))
	}

	return decodePacket(ba, rcvd, detailed)
}

func decodePacket(ba []byte, rcvd time.Time, detailed bool) (*Packet, error) {
	p := &Packet{ReceptionTime: rcvd}

	p.AppDataValid = (ba[6]&0x20)>>5 == 1
	// position_valid is parsed but never consulted, per original's own
	// documented choice (always observed to be zero in practice).
	p.PositionValid = (ba[5] & 0x01) == 1

	rawLat := (uint32(ba[0]) << 15) | (uint32(ba[1]) << 7) | (uint32(ba[2]) >> 1)
	rawLon := (uint32(ba[2]&0x01) << 23) | (uint32(ba[3]) << 15) | (uint32(ba[4]) << 7) | (uint32(ba[5]) >> 1)
	lon, lat := convertRawLongitudeLatitude(rawLon, rawLat, geo24Bits)
	p.Longitude, p.Latitude = lon, lat
	p.Station = stationName(lat, lon)

	if detailed {
		p.UTCCoupled = (ba[6]&0x80)>>7 == 1
		slotID := int(ba[6] & 0x1F)
		p.TransmissionTimeSlot = slotID + 1
		p.MSO = slotID * 22

		tisbID := int((ba[7] & 0xF0) >> 4)
		p.TISBSiteID = string("0123456789ABCDEF"[tisbID])
		if tisbID < len(tisbTierLookup) {
			p.TISBSiteType = tisbTierLookup[tisbID]
		}
	}

	offset := 8
	for offset < 431 {
		frameLength := (int(ba[offset]) << 1) | int((ba[offset+1]&0x80)>>7)
		if frameLength == 0 {
			break
		}
		if offset+2+frameLength > len(ba) {
			return nil, fmt.Errorf("frame: inner frame length %d overruns packet at offset %d", frameLength, offset)
		}

		frameType := ba[offset+1] & 0x0F
		payload := make([]byte, frameLength)
		copy(payload, ba[offset+2:offset+2+frameLength])

		var ft FrameType
		known := true
		switch frameType {
		case 0:
			ft = TypeAPDU
		case 14:
			ft = TypeCRL
		case 15:
			ft = TypeServiceStatus
		default:
			ft = TypeReserved
			known = detailed
		}
		if known {
			p.Frames = append(p.Frames, Frame{Type: ft, Length: frameLength, Payload: payload})
		}

		offset += frameLength + 2
	}

	return p, nil
}

var tisbTierLookup = []string{
	"NO-TISB", "S4", "S3", "S2", "S1", "L5", "L4",
	"L3", "L2", "L1", "M3", "M2", "M1", "H3",
	"H2", "H1",
}

func convertRawLongitudeLatitude(rawLongitude, rawLatitude uint32, bitFactor float64) (lon, lat float64) {
	lon = float64(rawLongitude) * bitFactor
	if lon > 180 {
		lon -= 360.0
	}
	lat = float64(rawLatitude) * bitFactor
	if lat > 90 {
		lat -= 180.0
	}

	lon, _ = strconv.ParseFloat(strconv.FormatFloat(lon, 'f', 6, 64), 64)
	lat, _ = strconv.ParseFloat(strconv.FormatFloat(lat, 'f', 6, 64), 64)
	return lon, lat
}

func stationName(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "~" + strconv.FormatFloat(lon, 'f', -1, 64)
}

// ExpectedPacketsPerSecond returns the number of packets/second a
// station of the given tisb_site_id nibble is expected to emit, used by
// the RSR accumulator to compute a percentage of expected traffic.
func ExpectedPacketsPerSecond(tisbID int) int {
	switch {
	case tisbID >= 13:
		return 4
	case tisbID >= 10:
		return 3
	case tisbID >= 5:
		return 2
	default:
		return 1
	}
}
