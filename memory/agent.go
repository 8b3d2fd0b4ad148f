package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Default capacities for AgentMemory. Their sum is the default MaxSize.
const (
	DefaultDocumentEntries     = 200
	DefaultStandardEntries     = 200
	DefaultConversationEntries = 50
	DefaultPatternEntries      = 50
)

// AgentConfig sizes each collection in an AgentMemory.
type AgentConfig struct {
	DocumentEntries     int `toml:"document_entries"`
	StandardEntries     int `toml:"standard_entries"`
	ConversationEntries int `toml:"conversation_entries"`
	PatternEntries      int `toml:"pattern_entries"`
}

// DefaultAgentConfig returns the default capacities.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		DocumentEntries:     DefaultDocumentEntries,
		StandardEntries:     DefaultStandardEntries,
		ConversationEntries: DefaultConversationEntries,
		PatternEntries:      DefaultPatternEntries,
	}
}

func (c AgentConfig) withDefaults() AgentConfig {
	d := DefaultAgentConfig()
	if c.DocumentEntries <= 0 {
		c.DocumentEntries = d.DocumentEntries
	}
	if c.StandardEntries <= 0 {
		c.StandardEntries = d.StandardEntries
	}
	if c.ConversationEntries <= 0 {
		c.ConversationEntries = d.ConversationEntries
	}
	if c.PatternEntries <= 0 {
		c.PatternEntries = d.PatternEntries
	}
	return c
}

// ConversationEntry is one exchange recorded in the conversation log.
type ConversationEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern is a learned pattern and how often it was observed.
type Pattern struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Usage reports the size counters of an AgentMemory.
type Usage struct {
	Documents    int     `json:"documents"`
	Standards    int     `json:"standards"`
	Conversation int     `json:"conversation"`
	Patterns     int     `json:"patterns"`
	CurrentSize  int     `json:"current_size"`
	MaxSize      int     `json:"max_size"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// AgentMemory is the bounded working memory of one agent. R is the cached
// analysis result type, S the cached standard type.
//
// The document cache evicts by recency, the standards cache by insertion
// order. Learned patterns keep the most recently reinforced keys.
type AgentMemory[R any, S any] struct {
	documents    *Bounded[string, R]
	standards    *Bounded[string, S]
	conversation *Ring[ConversationEntry]
	patterns     *Bounded[string, int]
	maxSize      int
}

// NewAgentMemory creates an agent memory sized by cfg. Zero fields use defaults.
func NewAgentMemory[R any, S any](cfg AgentConfig) *AgentMemory[R, S] {
	cfg = cfg.withDefaults()
	return &AgentMemory[R, S]{
		documents:    NewBounded[string, R](cfg.DocumentEntries, LRU),
		standards:    NewBounded[string, S](cfg.StandardEntries, FIFO),
		conversation: NewRing[ConversationEntry](cfg.ConversationEntries),
		patterns:     NewBounded[string, int](cfg.PatternEntries, LRU),
		maxSize:      cfg.DocumentEntries + cfg.StandardEntries + cfg.ConversationEntries + cfg.PatternEntries,
	}
}

// CachedAnalysis returns a cached result for key.
func (m *AgentMemory[R, S]) CachedAnalysis(key string) (R, bool) {
	return m.documents.Get(key)
}

// CacheAnalysis stores a result under key.
func (m *AgentMemory[R, S]) CacheAnalysis(key string, result R) {
	m.documents.Put(key, result)
}

// Standard returns a cached standard.
func (m *AgentMemory[R, S]) Standard(id string) (S, bool) {
	return m.standards.Get(id)
}

// CacheStandard stores a standard.
func (m *AgentMemory[R, S]) CacheStandard(id string, s S) {
	m.standards.Put(id, s)
}

// Remember appends an entry to the conversation log.
func (m *AgentMemory[R, S]) Remember(role, content string) ConversationEntry {
	entry := ConversationEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	m.conversation.Push(entry)
	return entry
}

// Conversation returns the conversation log, oldest first.
func (m *AgentMemory[R, S]) Conversation() []ConversationEntry {
	return m.conversation.Items()
}

// Learn increments the observation count for each key.
func (m *AgentMemory[R, S]) Learn(keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		m.patterns.Update(k, func(n int, _ bool) int { return n + 1 })
	}
}

// Patterns returns learned patterns, most observed first, ties by key.
func (m *AgentMemory[R, S]) Patterns() []Pattern {
	var out []Pattern
	m.patterns.Range(func(k string, n int) bool {
		out = append(out, Pattern{Key: k, Count: n})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Usage returns the current size counters.
func (m *AgentMemory[R, S]) Usage() Usage {
	u := Usage{
		Documents:    m.documents.Len(),
		Standards:    m.standards.Len(),
		Conversation: m.conversation.Len(),
		Patterns:     m.patterns.Len(),
		MaxSize:      m.maxSize,
		CacheHitRate: m.documents.Stats().HitRate(),
	}
	u.CurrentSize = u.Documents + u.Standards + u.Conversation + u.Patterns
	return u
}

// MaxSize returns the combined capacity of all collections.
func (m *AgentMemory[R, S]) MaxSize() int { return m.maxSize }

// Clear empties every collection.
func (m *AgentMemory[R, S]) Clear() {
	m.documents.Clear()
	m.standards.Clear()
	m.conversation.Clear()
	m.patterns.Clear()
}
