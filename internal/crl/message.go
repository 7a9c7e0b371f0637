package crl

import (
	"errors"
	"fmt"
	"time"

	"fisb/internal/config"
)

// Error kinds raised by the normalizers, each corresponding to a
// distinguished exception in fisb/level2/level2Exceptions.py.
var (
	ErrBadCrlType   = errors.New("crl: product id has no associated CRL")
	ErrIllegalCrl   = errors.New("crl: report has neither a text nor a graphics flag set")
)

// badMessagesCrl12 lists report identities stuck circulating in product
// 12's CRL for over a year without ever being retracted.
var badMessagesCrl12 = map[string]bool{
	"20-7489": true,
	"20-7676": true,
}

// Crl is a normalized CRL record: the list of reports a station has
// sent for one product id, each suffixed with its completeness class.
type Crl struct {
	Type           string    `json:"type"`
	UniqueName     string    `json:"unique_name"`
	ExpirationTime time.Time `json:"expiration_time"`
	Station        string    `json:"station"`
	ProductID      int       `json:"product_id"`
	RangeNM        int       `json:"range_nm"`
	HasOverflow    bool      `json:"has_overflow,omitempty"`
	Reports        []string  `json:"reports"`
}

// MsgCrl normalizes a decoded CRL frame into a Crl record. Expiration
// is twice the nominal transmission interval of the product the CRL
// tracks: 10 minutes for NOTAM-TFR/CWA/NOTAM-TRA/NOTAM-TMOA, 5 minutes
// for AIRMET/SIGMET/G-AIRMET.
func MsgCrl(frame *CrlFrame, station string, reception time.Time) (*Crl, error) {
	msg := &Crl{
		Type:       "CRL",
		UniqueName: fmt.Sprintf("CRL-%d-%s", frame.ProductID, station),
		Station:    station,
		ProductID:  frame.ProductID,
		RangeNM:    frame.ProductRangeNM,
	}
	if frame.OFlag {
		msg.HasOverflow = true
	}

	switch frame.ProductID {
	case 8, 15, 16, 17:
		msg.ExpirationTime = reception.Add(2 * 10 * time.Minute)
	case 11, 12, 14:
		msg.ExpirationTime = reception.Add(2 * 5 * time.Minute)
	default:
		return nil, ErrBadCrlType
	}

	msg.Reports = make([]string, 0, len(frame.Reports))
	for _, r := range frame.Reports {
		uniqueName := fmt.Sprintf("%d-%d", r.ReportYearOrMonth, r.ReportNumber)

		if frame.ProductID == 12 && badMessagesCrl12[uniqueName] {
			continue
		}

		var suffix string
		switch {
		case r.TextFlag && r.GraphicsFlag:
			suffix = "/TG"
		case !r.TextFlag && r.GraphicsFlag:
			suffix = "/GO"
		case r.TextFlag && !r.GraphicsFlag:
			suffix = "/TO"
		default:
			return nil, ErrIllegalCrl
		}

		msg.Reports = append(msg.Reports, uniqueName+suffix)
	}

	return msg, nil
}

// addrQualifierSuffix matches the original's ADDR_QUALIFIER_TYPES: a
// non-zero address qualifier is appended to the ICAO hex address.
func addrQualifierSuffix(addressType int) string {
	if addressType == 0 {
		return ""
	}
	return fmt.Sprintf("/%d", addressType)
}

// ServiceStatus is a normalized SERVICE_STATUS record: the pool of
// ICAO addresses one ground station is currently providing TIS-B to.
type ServiceStatus struct {
	Type           string    `json:"type"`
	UniqueName     string    `json:"unique_name"`
	ExpirationTime time.Time `json:"expiration_time"`
	Traffic        []string  `json:"traffic"`
}

// MsgServiceStatus normalizes a decoded service-status frame. The
// unique name is the station itself: callers maintaining a persistent
// aircraft pool must union traffic across successive messages, since
// FIS-B splits one station's aircraft list across several broadcasts.
func MsgServiceStatus(frame *ServiceStatusFrame, station string, reception time.Time, cfg config.Config) *ServiceStatus {
	msg := &ServiceStatus{
		Type:           "SERVICE_STATUS",
		UniqueName:     station,
		ExpirationTime: reception.Add(cfg.ServiceStatusExpire),
	}

	msg.Traffic = make([]string, 0, len(frame.Entries))
	for _, e := range frame.Entries {
		msg.Traffic = append(msg.Traffic, e.Address+addrQualifierSuffix(e.AddressType))
	}

	return msg
}
