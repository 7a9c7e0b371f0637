// Package crl decodes the CRL (Current Report List) and service-status
// inner frames and normalizes them into the CRL and SERVICE_STATUS
// record types.
//
// Grounded on fisb/level0/crl_frame.py, fisb/level0/service_status_frame.py,
// fisb/level2/msgCrl.py, and fisb/level2/msgServiceStatus.py.
package crl

// CrlReport is one entry in a CRL's report list: identity plus which
// parts (text, graphics) of that report this station has sent.
type CrlReport struct {
	ReportYearOrMonth int
	ReportNumber      int
	TextFlag          bool
	GraphicsFlag      bool
}

// CrlFrame is a decoded frame type 14 (Current Report List).
type CrlFrame struct {
	ProductID     int
	ProductRangeNM int
	TfrNotam      bool
	OFlag         bool
	LFlag         bool
	Location      string
	Reports       []CrlReport
}

// ServiceStatusEntry is one tracked aircraft in a service-status frame.
type ServiceStatusEntry struct {
	AddressType int
	Address     string // 6-digit lowercase hex ICAO address
}

// ServiceStatusFrame is a decoded frame type 15 (Service Status).
type ServiceStatusFrame struct {
	Entries []ServiceStatusEntry
}
