package memory

import (
	"container/list"
	"sync"
)

// Bounded is a fixed-capacity cache safe for concurrent use.
type Bounded[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*list.Element
	order    *list.List // front = next to evict
	capacity int
	policy   Policy
	onEvict  func(K, V)

	hits      int64
	misses    int64
	evictions int64
}

type boundedEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewBounded creates a cache holding at most capacity entries.
// A capacity below 1 is treated as 1.
func NewBounded[K comparable, V any](capacity int, policy Policy) *Bounded[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[K, V]{
		entries:  make(map[K]*list.Element),
		order:    list.New(),
		capacity: capacity,
		policy:   policy,
	}
}

// OnEvict registers fn to run, under the cache lock, for every capacity eviction.
func (b *Bounded[K, V]) OnEvict(fn func(K, V)) {
	b.mu.Lock()
	b.onEvict = fn
	b.mu.Unlock()
}

// Get returns the value for key and records a hit or miss. Under LRU the
// entry becomes the most recently used.
func (b *Bounded[K, V]) Get(key K) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		b.misses++
		var zero V
		return zero, false
	}
	b.hits++
	if b.policy == LRU {
		b.order.MoveToBack(elem)
	}
	return elem.Value.(*boundedEntry[K, V]).value, true
}

// Peek returns the value without touching stats or order.
func (b *Bounded[K, V]) Peek(key K) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.entries[key]; ok {
		return elem.Value.(*boundedEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, evicting first when the cache is full.
// Overwriting an existing key keeps its FIFO position.
func (b *Bounded[K, V]) Put(key K, value V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.entries[key]; ok {
		elem.Value.(*boundedEntry[K, V]).value = value
		if b.policy == LRU {
			b.order.MoveToBack(elem)
		}
		return
	}

	for b.order.Len() >= b.capacity {
		b.evictFront()
	}
	b.entries[key] = b.order.PushBack(&boundedEntry[K, V]{key: key, value: value})
}

// Update applies fn to the current value (zero value if absent) and stores
// the result in one step.
func (b *Bounded[K, V]) Update(key K, fn func(V, bool) V) V {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.entries[key]; ok {
		entry := elem.Value.(*boundedEntry[K, V])
		entry.value = fn(entry.value, true)
		if b.policy == LRU {
			b.order.MoveToBack(elem)
		}
		return entry.value
	}

	var zero V
	v := fn(zero, false)
	for b.order.Len() >= b.capacity {
		b.evictFront()
	}
	b.entries[key] = b.order.PushBack(&boundedEntry[K, V]{key: key, value: v})
	return v
}

// Delete removes key. It reports whether the key was present.
func (b *Bounded[K, V]) Delete(key K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		return false
	}
	b.order.Remove(elem)
	delete(b.entries, key)
	return true
}

// DeleteFunc removes every entry for which match returns true and returns the count.
func (b *Bounded[K, V]) DeleteFunc(match func(K, V) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for elem := b.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*boundedEntry[K, V])
		if match(entry.key, entry.value) {
			b.order.Remove(elem)
			delete(b.entries, entry.key)
			n++
		}
		elem = next
	}
	return n
}

// Keys returns keys in eviction order, next victim first.
func (b *Bounded[K, V]) Keys() []K {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]K, 0, b.order.Len())
	for elem := b.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*boundedEntry[K, V]).key)
	}
	return keys
}

// Range calls fn for every entry in eviction order until fn returns false.
// fn must not call back into the cache.
func (b *Bounded[K, V]) Range(fn func(K, V) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for elem := b.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*boundedEntry[K, V])
		if !fn(entry.key, entry.value) {
			return
		}
	}
}

// Len returns the number of entries.
func (b *Bounded[K, V]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// Cap returns the capacity.
func (b *Bounded[K, V]) Cap() int { return b.capacity }

// Policy returns the eviction policy.
func (b *Bounded[K, V]) Policy() Policy { return b.policy }

// Clear drops every entry and resets stats.
func (b *Bounded[K, V]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[K]*list.Element)
	b.order.Init()
	b.hits, b.misses, b.evictions = 0, 0, 0
}

// Stats returns a snapshot of size and counters.
func (b *Bounded[K, V]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Size:      b.order.Len(),
		Capacity:  b.capacity,
		Hits:      b.hits,
		Misses:    b.misses,
		Evictions: b.evictions,
		Policy:    b.policy.String(),
	}
}

func (b *Bounded[K, V]) evictFront() {
	elem := b.order.Front()
	if elem == nil {
		return
	}
	entry := elem.Value.(*boundedEntry[K, V])
	b.order.Remove(elem)
	delete(b.entries, entry.key)
	b.evictions++
	if b.onEvict != nil {
		b.onEvict(entry.key, entry.value)
	}
}
