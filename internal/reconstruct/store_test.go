package reconstruct

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStoreSaveLoadDelete(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()

	now := time.Unix(1700000000, 0)
	type payload struct {
		Value int `json:"value"`
	}

	if err := s.Save("bucket", "k1", payload{Value: 42}, now); err != nil {
		t.Fatalf("Save: %v", err)
	}

	seen := map[string]int{}
	err = s.Load("bucket", func(key string, raw []byte) {
		var p payload
		if json.Unmarshal(raw, &p) == nil {
			seen[key] = p.Value
		}
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if seen["k1"] != 42 {
		t.Fatalf("got %v, want k1=42", seen)
	}

	if err := s.Delete("bucket", "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	seen = map[string]int{}
	_ = s.Load("bucket", func(key string, raw []byte) { seen[key] = 1 })
	if len(seen) != 0 {
		t.Fatalf("expected empty bucket after delete, got %v", seen)
	}
}
