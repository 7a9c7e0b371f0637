package reconstruct

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fisb/internal/apdu/twgo"
)

// Segment is one piece of a message split across several APDUs
// (s_flag=1), identified by apdu_number's position among
// product_file_length total segments sharing a product_file_id.
type Segment struct {
	ProductID         int
	ProductFileID     int
	ProductFileLength int
	ApduNumber        int // 1-based
	PayloadHex        string
}

type pendingSegments struct {
	NumberINeed int       `json:"number_i_need"`
	Have        int       `json:"number_i_have"`
	InsertTime  time.Time `json:"insert_time"`
	Segments    []string  `json:"segments"`
}

// Desegmenter reassembles multi-APDU messages split across
// product_file_length consecutive APDUs sharing a product id and
// product_file_id. Only TWGO payloads are ever segmented.
//
// Grounded on fisb/level1/Unsegmenter.py.
type Desegmenter struct {
	mu      sync.Mutex
	expunge time.Duration
	pending map[string]*pendingSegments
	store   *Store
}

// NewDesegmenter creates a Desegmenter that forgets an incomplete
// message after expunge has passed since its first segment arrived.
// store may be nil for an ephemeral, non-persisted desegmenter.
func NewDesegmenter(expunge time.Duration, store *Store) *Desegmenter {
	d := &Desegmenter{
		expunge: expunge,
		pending: make(map[string]*pendingSegments),
		store:   store,
	}
	if store != nil {
		_ = store.Load("desegment", func(key string, raw []byte) {
			var p pendingSegments
			if json.Unmarshal(raw, &p) == nil {
				d.pending[key] = &p
			}
		})
	}
	return d
}

func segmentKey(productID, productFileID int) string {
	return fmt.Sprintf("S%d-%d", productID, productFileID)
}

// Process stores seg and, once every segment of its message has
// arrived, concatenates them and decodes the reassembled TWGO record.
// Returns (nil, nil) while the message is still incomplete.
func (d *Desegmenter) Process(seg Segment, now time.Time) (*twgo.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := segmentKey(seg.ProductID, seg.ProductFileID)
	idx := seg.ApduNumber - 1

	p, ok := d.pending[k]
	if !ok {
		if idx < 0 || idx >= seg.ProductFileLength {
			return nil, fmt.Errorf("reconstruct: segment index %d out of bounds (need %d)", idx, seg.ProductFileLength)
		}
		p = &pendingSegments{
			NumberINeed: seg.ProductFileLength,
			InsertTime:  now,
			Have:        1,
			Segments:    make([]string, seg.ProductFileLength),
		}
		p.Segments[idx] = seg.PayloadHex
		d.pending[k] = p
		d.persist(k, p)
		return nil, nil
	}

	if idx < 0 || idx >= len(p.Segments) {
		return nil, fmt.Errorf("reconstruct: segment index %d out of bounds (need %d)", idx, p.NumberINeed)
	}
	if p.Segments[idx] != "" {
		// Already have this one; duplicate transmission, nothing to do.
		return nil, nil
	}
	p.Segments[idx] = seg.PayloadHex
	p.Have++

	if p.Have < p.NumberINeed {
		d.persist(k, p)
		return nil, nil
	}

	delete(d.pending, k)
	if d.store != nil {
		_ = d.store.Delete("desegment", k)
	}

	// First segment's whole payload carries the TWGO header; every
	// later segment repeats that 6-byte (12 hex char) header and only
	// its remainder is new.
	full := p.Segments[0]
	for i := 1; i < len(p.Segments); i++ {
		s := p.Segments[i]
		if len(s) > 12 {
			s = s[12:]
		} else {
			s = ""
		}
		full += s
	}

	ba, err := hex.DecodeString(full)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: bad reassembled hex: %w", err)
	}
	return twgo.Decode(ba, seg.ProductID)
}

func (d *Desegmenter) persist(k string, p *pendingSegments) {
	if d.store == nil {
		return
	}
	_ = d.store.Save("desegment", k, p, p.InsertTime)
}

// Expunge drops any pending message whose first segment arrived more
// than the configured expunge window ago, matching L1Base's
// expungeItems sweep run from the maintenance loop.
func (d *Desegmenter) Expunge(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.expunge)
	for k, p := range d.pending {
		if p.InsertTime.Before(cutoff) {
			delete(d.pending, k)
			if d.store != nil {
				_ = d.store.Delete("desegment", k)
			}
		}
	}
}
