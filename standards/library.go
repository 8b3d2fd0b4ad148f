package standards

import (
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/memory"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// DefaultCacheSize is the default number of cached read results.
const DefaultCacheSize = 1000

const (
	standardKeyPrefix     = "standard:"
	requirementsKeyPrefix = "requirements:"
)

// cacheEntry holds either a standard or a requirement list.
type cacheEntry struct {
	standard     *Standard
	requirements []Requirement
}

// Library is an in-memory standards store. It is safe for concurrent use.
type Library struct {
	mu           sync.RWMutex
	standards    map[string]*Standard
	requirements map[string]string // requirement id -> standard id

	cache *memory.Bounded[string, cacheEntry]
	group singleflight.Group
	index bleve.Index

	logger  *logging.Logger
	metrics *telemetry.Metrics
}

type options struct {
	seed      []Standard
	cacheSize int
	logger    *logging.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Library.
type Option func(*options)

// WithStandards replaces the built-in catalogue with seed.
// Pass no standards for an empty library.
func WithStandards(seed ...Standard) Option {
	return func(o *options) {
		o.seed = seed
		if o.seed == nil {
			o.seed = []Standard{}
		}
	}
}

// WithCacheSize bounds the read cache. Non-positive values keep the default.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records cache hits and misses into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a library seeded with DefaultStandards unless WithStandards is given.
func New(opts ...Option) (*Library, error) {
	o := options{cacheSize: DefaultCacheSize, logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seed == nil {
		o.seed = DefaultStandards()
	}

	index, err := newIndex()
	if err != nil {
		return nil, err
	}

	l := &Library{
		standards:    make(map[string]*Standard),
		requirements: make(map[string]string),
		cache:        memory.NewBounded[string, cacheEntry](o.cacheSize, memory.FIFO),
		index:        index,
		logger:       o.logger.WithComponent("standards"),
		metrics:      o.metrics,
	}
	for _, s := range o.seed {
		if err := l.AddStandard(s); err != nil {
			index.Close()
			return nil, errors.Wrap(err, "seeding standards library", errors.WithMetadata("standard_id", s.ID))
		}
	}
	l.logger.Debug("library_ready", map[string]interface{}{"standards": len(l.standards)})
	return l, nil
}

// Close releases the full-text index.
func (l *Library) Close() error {
	return l.index.Close()
}

// GetStandard returns a copy of the standard with id.
func (l *Library) GetStandard(id string) (*Standard, error) {
	entry, err := l.readThrough(standardKeyPrefix+id, func() (cacheEntry, bool) {
		s, ok := l.standards[id]
		if !ok {
			return cacheEntry{}, false
		}
		c := s.Clone()
		return cacheEntry{standard: &c}, true
	})
	if err != nil {
		return nil, l.notFound(id)
	}
	c := entry.standard.Clone()
	return &c, nil
}

// GetRequirements returns copies of the requirements of standard id, in order.
func (l *Library) GetRequirements(id string) ([]Requirement, error) {
	entry, err := l.readThrough(requirementsKeyPrefix+id, func() (cacheEntry, bool) {
		s, ok := l.standards[id]
		if !ok {
			return cacheEntry{}, false
		}
		reqs := cloneRequirements(s.Requirements)
		if reqs == nil {
			reqs = []Requirement{}
		}
		return cacheEntry{requirements: reqs}, true
	})
	if err != nil {
		return nil, l.notFound(id)
	}
	return cloneRequirements(entry.requirements), nil
}

var errMiss = errors.New(errors.ErrCodeNotFound, "not in store")

// readThrough serves key from the cache, loading it from the store on a miss.
// Concurrent misses for one key share a single load. The load runs under the
// read lock so a concurrent mutation cannot leave a stale entry behind.
func (l *Library) readThrough(key string, load func() (cacheEntry, bool)) (cacheEntry, error) {
	if entry, ok := l.cache.Get(key); ok {
		l.metrics.CacheHit()
		return entry, nil
	}
	l.metrics.CacheMiss()

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		l.mu.RLock()
		defer l.mu.RUnlock()

		entry, ok := load()
		if !ok {
			return nil, errMiss
		}
		l.cache.Put(key, entry)
		return entry, nil
	})
	if err != nil {
		return cacheEntry{}, err
	}
	return v.(cacheEntry), nil
}

func (l *Library) notFound(id string) error {
	return errors.NotFound("standard not found: "+id, errors.WithMetadata("standard_id", id))
}

// AddStandard validates s and stores a copy.
func (l *Library) AddStandard(s Standard) error {
	if err := Validate(s); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.standards[s.ID]; exists {
		return errors.AlreadyExists("standard already exists: "+s.ID, errors.WithMetadata("standard_id", s.ID))
	}
	if err := l.checkRequirementOwnership(s); err != nil {
		return err
	}
	if err := l.store(s); err != nil {
		return err
	}
	l.logger.Info("standard_added", map[string]interface{}{
		"standard_id":  s.ID,
		"requirements": len(s.Requirements),
	})
	return nil
}

// UpdateStandard replaces standard id with s. An empty s.ID takes id.
func (l *Library) UpdateStandard(id string, s Standard) error {
	if s.ID == "" {
		s.ID = id
	}
	if s.ID != id {
		return errors.Validation("standard id cannot change on update",
			errors.WithMetadata("standard_id", id),
			errors.WithMetadata("new_id", s.ID))
	}
	if err := Validate(s); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old, exists := l.standards[id]
	if !exists {
		return l.notFound(id)
	}
	if err := l.checkRequirementOwnership(s); err != nil {
		return err
	}

	for _, r := range old.Requirements {
		delete(l.requirements, r.ID)
	}
	if err := l.store(s); err != nil {
		// Restore the previous requirement ownership; the map entry is untouched.
		for _, r := range old.Requirements {
			l.requirements[r.ID] = id
		}
		return err
	}
	l.logger.Info("standard_updated", map[string]interface{}{"standard_id": id})
	return nil
}

// RemoveStandard deletes standard id.
func (l *Library) RemoveStandard(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, exists := l.standards[id]
	if !exists {
		return l.notFound(id)
	}
	if err := l.index.Delete(id); err != nil {
		return errors.Wrap(err, "removing standard from index", errors.WithMetadata("standard_id", id))
	}
	for _, r := range s.Requirements {
		delete(l.requirements, r.ID)
	}
	delete(l.standards, id)
	l.invalidate(id)

	l.logger.Info("standard_removed", map[string]interface{}{"standard_id": id})
	return nil
}

// checkRequirementOwnership rejects requirement ids owned by another standard.
// Callers hold the write lock.
func (l *Library) checkRequirementOwnership(s Standard) error {
	for _, r := range s.Requirements {
		if owner, ok := l.requirements[r.ID]; ok && owner != s.ID {
			return errors.Consistency("requirement "+r.ID+" already belongs to "+owner,
				errors.WithMetadata("standard_id", s.ID),
				errors.WithMetadata("requirement_id", r.ID))
		}
	}
	return nil
}

// store indexes s, then writes it and drops its cache keys. The index is
// written first so a failure leaves the map unchanged. Callers hold the write lock.
func (l *Library) store(s Standard) error {
	c := s.Clone()
	if err := l.index.Index(c.ID, indexDocOf(c)); err != nil {
		return errors.Wrap(err, "indexing standard", errors.WithMetadata("standard_id", c.ID))
	}
	l.standards[c.ID] = &c
	for _, r := range c.Requirements {
		l.requirements[r.ID] = c.ID
	}
	l.invalidate(c.ID)
	return nil
}

func (l *Library) invalidate(id string) {
	l.cache.Delete(standardKeyPrefix + id)
	l.cache.Delete(requirementsKeyPrefix + id)
}

// CacheStats returns read-cache counters.
func (l *Library) CacheStats() memory.Stats {
	return l.cache.Stats()
}

// ClearCache drops every cached read.
func (l *Library) ClearCache() {
	l.cache.Clear()
}

// Len returns the number of stored standards.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.standards)
}

// sortedLocked returns copies of all standards by name. Callers hold a lock.
func (l *Library) sortedLocked() []Standard {
	out := make([]Standard, 0, len(l.standards))
	for _, s := range l.standards {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return lessByName(out[i], out[j]) })
	return out
}

func lessByName(a, b Standard) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
