// Package config holds the tunables enumerated in the external
// interfaces section of the pipeline's specification: image lifecycle
// timing, expiration windows per product family, and feature toggles.
package config

import "time"

// Config collects every configuration item the pipeline consults.
// Field names mirror the original Python's harvestConfig.py constants,
// grouped the way storage.Config groups ClickHouse and Postgres settings.
type Config struct {
	// Harvester / image lifecycle.
	ImageDirectory     string
	MaintInterval       time.Duration
	QuietImageSeconds   time.Duration
	ProcessImages       bool
	AnnotateCRLReports  bool
	ImmediateCRLUpdate  bool
	ExpireMessages      bool

	// Per-product expiration.
	MetarExpire                  time.Duration
	FisbUnavailExpire             time.Duration
	PirepExpire                   time.Duration
	PirepUseReportTimeToExpire    bool
	PirepStoreDedup               bool
	TwgoDefaultExpire             time.Duration
	BypassTwgoSmartExpiration     bool
	NotamPermTime                 time.Time
	CancelExpire                  time.Duration

	// Block/image product expiration.
	RegionalNexradExpire time.Duration
	ConusNexradExpire    time.Duration
	TurbulenceExpire     time.Duration
	IcingExpire          time.Duration
	CloudTopsExpire      time.Duration
	LightningExpire      time.Duration

	// Reconstruction.
	SegmentExpire time.Duration
	TwgoExpire    time.Duration

	// CRL / service status.
	ServiceStatusExpire time.Duration

	// Deduplication.
	DedupExpireMsgTime      time.Duration
	DedupExpungeInterval    time.Duration

	// RSR.
	CalculateRSR     bool
	RSRWindowSeconds time.Duration
	RSRStrideSeconds time.Duration
	RSRWarnPercent   int // log a warning when a station's computed rate falls below this

	// Product gating.
	BlockSUAMessages bool

	// Operational review server.
	ReviewPort int

	// Store / archive connection settings.
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig mirrors storage.PostgresConfig from the teacher: host,
// port, database, and credentials.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseConfig mirrors storage.ClickHouseConfig.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// farFuture is the "PERM" NOTAM sentinel: a date far enough in the
// future that no practical expiration sweep will ever touch it. It plays
// the role of the original's NOTAM_PERM_TIME constant, with a later date
// than the original's 2038-01-01.
var farFuture = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

// Default returns the configuration the original Python shipped as
// defaults in harvestConfig.py.
func Default() Config {
	return Config{
		ImageDirectory:      "./images",
		MaintInterval:       10 * time.Second,
		QuietImageSeconds:   10 * time.Second,
		ProcessImages:       true,
		AnnotateCRLReports:  true,
		ImmediateCRLUpdate:  true,
		ExpireMessages:      true,

		MetarExpire:               120 * time.Minute,
		FisbUnavailExpire:         20 * time.Minute,
		PirepExpire:               120 * time.Minute,
		PirepUseReportTimeToExpire: false,
		PirepStoreDedup:           false,
		TwgoDefaultExpire:         61 * time.Minute,
		BypassTwgoSmartExpiration: false,
		NotamPermTime:             farFuture,
		CancelExpire:              20 * time.Minute,

		RegionalNexradExpire: 75 * time.Minute,
		ConusNexradExpire:    75 * time.Minute,
		TurbulenceExpire:     105 * time.Minute,
		IcingExpire:          105 * time.Minute,
		CloudTopsExpire:      105 * time.Minute,
		LightningExpire:      75 * time.Minute,

		SegmentExpire: 2 * time.Minute,
		TwgoExpire:    90 * time.Minute,

		ServiceStatusExpire: 40 * time.Second,

		DedupExpireMsgTime:   45 * time.Minute,
		DedupExpungeInterval: 10 * time.Minute,

		CalculateRSR:     false,
		RSRWindowSeconds: 120 * time.Second,
		RSRStrideSeconds: 10 * time.Second,
		RSRWarnPercent:   50,

		BlockSUAMessages: true,

		ReviewPort: 8282,

		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "fisb",
			User:     "fisb",
			Password: "fisb",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "fisb",
			User:     "default",
			Password: "",
		},
	}
}
