package classify

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

const (
	cacheTTL            = 7 * 24 * time.Hour
	cacheMaxSize        = 1000
	similarityThreshold = 0.85
)

var cacheDigits = regexp.MustCompile(`\d+`)

// CacheEntry is a remembered classification, reusable for the same or a
// sufficiently similar description.
type CacheEntry struct {
	Description  string
	Flow         domain.FlowType
	CategoryID   string
	CategoryName string
	Confidence   float64
	Reasoning    string
	At           time.Time
}

// Cache is an in-memory, process-lifetime cache of AI classifications.
// Exact lookups go through a normalized key; misses fall back to a
// Jaccard word-overlap scan. Entries expire after 7 days and eviction is
// FIFO at 1000 entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	order   []string
	hits    int
	misses  int
	now     func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]CacheEntry),
		now:     time.Now,
	}
}

// cacheKey normalizes a description for exact lookup: lowercase,
// collapsed whitespace, digits stripped ("UBER 123" and "UBER 456" share
// a key).
func cacheKey(description string, flow domain.FlowType) string {
	normalized := strings.ToLower(strings.TrimSpace(description))
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = cacheDigits.ReplaceAllString(normalized, "")
	return string(flow) + ":" + normalized
}

// similarity is the Jaccard index over the word sets of two
// descriptions.
func similarity(a, b string) float64 {
	s1 := strings.ToLower(a)
	s2 := strings.ToLower(b)
	if s1 == s2 {
		return 1.0
	}

	words1 := map[string]struct{}{}
	for _, w := range strings.Split(s1, " ") {
		words1[w] = struct{}{}
	}
	words2 := map[string]struct{}{}
	for _, w := range strings.Split(s2, " ") {
		words2[w] = struct{}{}
	}

	intersection := 0
	for w := range words1 {
		if _, ok := words2[w]; ok {
			intersection++
		}
	}
	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Get looks up a cached classification for the description, first by
// exact normalized key, then by word similarity against live entries of
// the same flow type. Expired entries encountered on either path are
// dropped.
func (c *Cache) Get(description string, flow domain.FlowType) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := cacheKey(description, flow)

	if entry, ok := c.entries[key]; ok {
		if now.Sub(entry.At) < cacheTTL {
			c.hits++
			return entry, true
		}
		c.remove(key)
	}

	var best CacheEntry
	bestScore := 0.0
	prefix := string(flow) + ":"
	for k, entry := range c.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if now.Sub(entry.At) >= cacheTTL {
			c.remove(k)
			continue
		}
		score := similarity(description, entry.Description)
		if score >= similarityThreshold && score > bestScore {
			best = entry
			bestScore = score
		}
	}
	if bestScore > 0 {
		c.hits++
		return best, true
	}

	c.misses++
	return CacheEntry{}, false
}

// Put stores a classification. Callers only store resolved categories
// with acceptable confidence; the cache itself does not judge.
func (c *Cache) Put(description string, flow domain.FlowType, categoryID, categoryName string, confidence float64, reasoning string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(description, flow)
	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= cacheMaxSize {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = CacheEntry{
		Description:  description,
		Flow:         flow,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		Confidence:   confidence,
		Reasoning:    reasoning,
		At:           c.now(),
	}
}

// CleanExpired drops every expired entry and returns how many were
// removed.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, entry := range c.entries {
		if now.Sub(entry.At) >= cacheTTL {
			c.remove(k)
			removed++
		}
	}
	return removed
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// CacheStats is a point-in-time snapshot for the stats endpoint.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
	TTL     string  `json:"ttl"`
}

// Stats reports size and hit rate since process start.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate := 0.0
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    len(c.entries),
		MaxSize: cacheMaxSize,
		HitRate: rate,
		TTL:     cacheTTL.String(),
	}
}

// remove deletes an entry and its slot in the FIFO order. Caller holds
// the lock.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
