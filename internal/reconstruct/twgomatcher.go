package reconstruct

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fisb/internal/apdu/twgo"
)

// Matched is a TWGO message ready for normalization, carrying a text
// half, a graphics half, or both.
type Matched struct {
	ProductID int
	Text      *twgo.Record
	Graphics  *twgo.Record
}

type msgHxEntry struct {
	Text           *twgo.Record `json:"text_contents"`
	Graphics       *twgo.Record `json:"graphics_contents"`
	LastUpdateTime time.Time    `json:"last_update_time"`
}

// ErrMultipleTextRecords is returned when a single TWGO text payload
// carries more than one record; the standard allows only one.
var ErrMultipleTextRecords = errors.New("reconstruct: more than one text record in a TWGO message")

// TwgoMatcher pairs the text and graphics halves of a TWGO message
// that are delivered as separate APDUs. The standard requires a text
// part be emitted the moment it arrives, so the matcher must track
// enough history to still attach graphics to a text part it has
// already sent, and to recognize a changed text part as a fresh
// message that invalidates any stored graphics. A cancellation is
// emitted as-is and leaves any stored text and graphics in place.
//
// Grounded on fisb/level1/TwgoMatcher.py.
type TwgoMatcher struct {
	mu      sync.Mutex
	expunge time.Duration
	msgHx   map[string]*msgHxEntry
	store   *Store
}

// NewTwgoMatcher creates a TwgoMatcher that forgets match state that
// hasn't been touched in expunge. store may be nil for an ephemeral,
// non-persisted matcher.
func NewTwgoMatcher(expunge time.Duration, store *Store) *TwgoMatcher {
	m := &TwgoMatcher{
		expunge: expunge,
		msgHx:   make(map[string]*msgHxEntry),
		store:   store,
	}
	if store != nil {
		_ = store.Load("twgo_match", func(key string, raw []byte) {
			var e msgHxEntry
			if json.Unmarshal(raw, &e) == nil {
				m.msgHx[key] = &e
			}
		})
	}
	return m
}

func matchKey(productID, reportYear, reportNumber int, location string, month int) string {
	return fmt.Sprintf("%d-%d-%d-%s-%d", productID, reportYear, reportNumber, location, month)
}

// Process matches rec, the already-decoded TWGO payload of one APDU
// for the given productID, against any previously-seen half. location
// and month come from the TWGO record's own location field and the
// APDU header's month field (0 if the header carries no date, "X" is
// substituted for an empty location) and together with productID and
// the record's report year/number form the uniqueness key per
// standard section B.3.3. Returns (nil, nil) when nothing should be
// emitted yet.
func (m *TwgoMatcher) Process(productID int, location string, month int, rec *twgo.Record, now time.Time) (*Matched, error) {
	if location == "" {
		location = "X"
	}

	var reportYear, reportNumber int
	switch rec.RecordFormat {
	case twgo.FormatText:
		if len(rec.TextRecords) != 1 {
			return nil, fmt.Errorf("%w: found %d", ErrMultipleTextRecords, len(rec.TextRecords))
		}
		reportYear = rec.TextRecords[0].ReportYear
		reportNumber = rec.TextRecords[0].ReportNumber
	case twgo.FormatGraphic:
		if len(rec.GraphicRecords) == 0 {
			return nil, fmt.Errorf("reconstruct: TWGO graphic payload has no records")
		}
		reportYear = rec.GraphicRecords[0].ReportYear
		reportNumber = rec.GraphicRecords[0].ReportNumber
	default:
		return nil, fmt.Errorf("reconstruct: TWGO record format not 2 or 8, found %d", rec.RecordFormat)
	}

	k := matchKey(productID, reportYear, reportNumber, location, month)

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.msgHx[k]
	if !ok {
		entry = &msgHxEntry{LastUpdateTime: now}
		m.msgHx[k] = entry
	}
	entry.LastUpdateTime = now

	if rec.RecordFormat == twgo.FormatGraphic {
		entry.Graphics = rec
		m.persist(k, entry)
		if entry.Text != nil {
			return &Matched{ProductID: productID, Text: entry.Text, Graphics: rec}, nil
		}
		return nil, nil
	}

	// Textual.
	status := rec.TextRecords[0].ReportStatus
	text := rec.TextRecords[0].Text

	if status == 0 {
		// Cancellation: always emitted immediately.
		m.persist(k, entry)
		return &Matched{ProductID: productID, Text: rec}, nil
	}

	if text == "" {
		if productID != 8 {
			// Blank ACTIVE text is just a keep-alive; ignore it.
			return nil, nil
		}
		// NOTAM-TFR renewals carry no text; send as-is.
		m.persist(k, entry)
		return &Matched{ProductID: productID, Text: rec}, nil
	}

	if entry.Text == nil {
		entry.Text = rec
		m.persist(k, entry)
		out := &Matched{ProductID: productID, Text: rec}
		if entry.Graphics != nil {
			out.Graphics = entry.Graphics
		}
		return out, nil
	}

	if entry.Text.TextRecords[0].Text != text {
		// Text changed: treat as a fresh message, discard stale graphics.
		entry.Graphics = nil
		entry.Text = rec
		m.persist(k, entry)
		return &Matched{ProductID: productID, Text: rec}, nil
	}

	entry.Text = rec
	m.persist(k, entry)
	if entry.Graphics != nil {
		// Unchanged text with graphics already held: already emitted as
		// (text), then (text+graphic); nothing new to say.
		return nil, nil
	}
	return &Matched{ProductID: productID, Text: rec}, nil
}

func (m *TwgoMatcher) persist(k string, e *msgHxEntry) {
	if m.store == nil {
		return
	}
	_ = m.store.Save("twgo_match", k, e, e.LastUpdateTime)
}

// Expunge drops match state that hasn't been updated within the
// configured expunge window.
func (m *TwgoMatcher) Expunge(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.expunge)
	for k, e := range m.msgHx {
		if e.LastUpdateTime.Before(cutoff) {
			delete(m.msgHx, k)
			if m.store != nil {
				_ = m.store.Delete("twgo_match", k)
			}
		}
	}
}
