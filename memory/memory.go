// Package memory provides bounded in-process collections.
//
// Every collection has a fixed capacity and an explicit eviction policy.
// Inserting into a full collection evicts before it grows, so the size never
// exceeds the capacity.
//
// # Collections
//
//   - [Bounded]: keyed cache with FIFO (insertion order) or LRU (recency) eviction
//   - [Ring]: append-only buffer that drops the oldest entry when full
//   - [AgentMemory]: the per-agent bundle of document cache, standards cache,
//     conversation log and learned patterns
package memory

import "fmt"

// Policy selects which entry a full Bounded cache evicts.
type Policy int

const (
	// FIFO evicts the entry inserted first. Reads do not change the order.
	FIFO Policy = iota
	// LRU evicts the entry read or written least recently.
	LRU
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LRU:
		return "lru"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Policy    string `json:"policy"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
