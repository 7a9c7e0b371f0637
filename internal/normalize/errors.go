package normalize

import "errors"

// Error kinds raised by the per-family converters. Each corresponds to
// a distinguished exception in fisb/level2/level2Exceptions.py; the
// pipeline logs these and drops the offending record (spec §4.8).
var (
	ErrTooManyRecords     = errors.New("normalize: product has more than one record")
	ErrRegexDidNotMatch   = errors.New("normalize: text did not match expected grammar")
	ErrUnknown413Message  = errors.New("normalize: unrecognized 413 text message")
	ErrIllegalWindProduct = errors.New("normalize: could not resolve winds aloft forecast horizon")
	ErrIllegalTwgoMessage = errors.New("normalize: empty text or unexpected overlay geometry in TWGO message")
	ErrTwgoHeaderParse    = errors.New("normalize: TWGO text header did not match expected grammar")
	ErrGAirmetMessage     = errors.New("normalize: G-AIRMET parameters out of range")
	ErrSua                = errors.New("normalize: could not decode SUA message")
	ErrBadProductID       = errors.New("normalize: unrecognized block product id")
	ErrPirepFieldTooSmall = errors.New("normalize: PIREP field shorter than its two-character tag")
)
