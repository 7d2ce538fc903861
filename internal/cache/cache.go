// Package cache is the TTL/LRU extraction cache keyed by source URL.
//
// One long-lived instance is constructed with a config and passed to the
// orchestrator; Destroy stops its background sweep. Entries carry a content
// fingerprint so re-extracting an unchanged page refreshes access
// bookkeeping instead of writing a duplicate entry.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
)

// Entry is one cached extraction outcome.
type Entry struct {
	Key          string           `json:"key"`
	SourceURL    string           `json:"source_url"`
	Fingerprint  string           `json:"fingerprint"`
	Contacts     []domain.Contact `json:"contacts"`
	QualityScore float64          `json:"quality_score"`
	ExpiresAt    time.Time        `json:"expires_at"`
	AccessCount  int              `json:"access_count"`
	LastAccess   time.Time        `json:"last_access"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Config tunes the cache. Zero values get defaults.
type Config struct {
	TTL             time.Duration // entry lifetime (default: 1h)
	MaxSize         int           // entry cap (default: 1000)
	CleanupInterval time.Duration // background sweep period (default: 10m)
	Logger          *slog.Logger
}

// Stats is the observability snapshot returned by Stats.
type Stats struct {
	Size             int     `json:"size"`
	MaxSize          int     `json:"max_size"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	Evictions        int64   `json:"evictions"`
	AvgAccessCount   float64 `json:"avg_access_count"`
	MaxAccessCount   int     `json:"max_access_count"`
	EstimatedBytes   int64   `json:"estimated_bytes"`
	UtilizationRatio float64 `json:"utilization_ratio"`
}

// Recommendation is the self-tuning advice from OptimizeConfiguration.
type Recommendation struct {
	TTL             time.Duration `json:"ttl"`
	MaxSize         int           `json:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	Reasons         []string      `json:"reasons"`
}

// CacheError wraps a cache failure; the orchestrator degrades to bypassing
// the cache rather than failing the job.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }

// Cache is a mutex-guarded TTL/LRU store. Set and Delete are atomic with
// respect to a single key.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	ttl      time.Duration
	maxSize  int
	interval time.Duration
	logger   *slog.Logger

	hits      int64
	misses    int64
	evictions int64

	stop chan struct{}
	done chan struct{}
}

// New builds a cache and starts its background sweep. Callers must Destroy
// it on shutdown to stop the sweep goroutine.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache{
		entries:  make(map[string]*Entry),
		ttl:      cfg.TTL,
		maxSize:  cfg.MaxSize,
		interval: cfg.CleanupInterval,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Destroy stops the background sweep and clears the cache.
func (c *Cache) Destroy() {
	select {
	case <-c.stop:
		return // already destroyed
	default:
	}
	close(c.stop)
	<-c.done

	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *Cache) sweep() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			removed := c.Cleanup()
			if removed > 0 {
				c.logger.Debug("cache sweep", "removed", removed)
			}
		}
	}
}

// Key returns the stable cache key for a URL: sha256 of the normalized URL.
func Key(rawURL string) string {
	normalized := normalizeURL(rawURL)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}

func normalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	trimmed := strings.TrimSuffix(u.Path, "/")
	if trimmed != "" {
		u.Path = trimmed
	}
	return u.String()
}

// Fingerprint computes the change-detection hash for a parsed page:
// URL + title + content length + word count + author + publish time.
func Fingerprint(pc *content.ParsedContent) string {
	h := sha256.New()
	h.Write([]byte(pc.URL))
	h.Write([]byte{0})
	h.Write([]byte(pc.Title))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d|%d", len(pc.Text), pc.WordCount)
	h.Write([]byte{0})
	h.Write([]byte(pc.Author))
	if pc.PublishedAt != nil {
		h.Write([]byte{0})
		h.Write([]byte(pc.PublishedAt.UTC().Format(time.RFC3339)))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached contacts for url, or ok=false on miss. Expired
// entries are lazily evicted on lookup.
func (c *Cache) Get(rawURL string) (*Entry, bool) {
	key := Key(rawURL)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if now.After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	entry.AccessCount++
	entry.LastAccess = now
	c.hits++
	return entry, true
}

// Has reports whether url has a live entry without touching access stats.
func (c *Cache) Has(rawURL string) bool {
	key := Key(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return ok && time.Now().Before(entry.ExpiresAt)
}

// Set stores the extraction outcome for a page. When an existing entry has
// the same content fingerprint only access bookkeeping is updated; the
// cached contacts are left in place (idempotent set).
func (c *Cache) Set(pc *content.ParsedContent, contacts []domain.Contact, qualityScore float64) {
	key := Key(pc.URL)
	fingerprint := Fingerprint(pc)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Fingerprint == fingerprint {
		existing.AccessCount++
		existing.LastAccess = now
		existing.ExpiresAt = now.Add(c.ttl)
		return
	}

	if _, replacing := c.entries[key]; !replacing && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = &Entry{
		Key:          key,
		SourceURL:    pc.URL,
		Fingerprint:  fingerprint,
		Contacts:     contacts,
		QualityScore: qualityScore,
		ExpiresAt:    now.Add(c.ttl),
		AccessCount:  1,
		LastAccess:   now,
		CreatedAt:    now,
	}
}

// Delete removes the entry for url, if present.
func (c *Cache) Delete(rawURL string) {
	key := Key(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// GetMultiple looks up several URLs at once; the returned map holds only hits.
func (c *Cache) GetMultiple(urls []string) map[string]*Entry {
	out := make(map[string]*Entry, len(urls))
	for _, u := range urls {
		if entry, ok := c.Get(u); ok {
			out[u] = entry
		}
	}
	return out
}

// SetMultiple stores several extraction outcomes.
func (c *Cache) SetMultiple(items []struct {
	Content      *content.ParsedContent
	Contacts     []domain.Contact
	QualityScore float64
}) {
	for _, item := range items {
		c.Set(item.Content, item.Contacts, item.QualityScore)
	}
}

// evictLRU drops the least-recently-accessed 10% of entries (at least one).
// Caller holds the lock.
func (c *Cache) evictLRU() {
	type aged struct {
		key  string
		last time.Time
	}
	entries := make([]aged, 0, len(c.entries))
	for k, v := range c.entries {
		entries = append(entries, aged{key: k, last: v.LastAccess})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].last.Before(entries[j].last) })

	drop := len(entries) / 10
	if drop < 1 {
		drop = 1
	}
	for _, e := range entries[:drop] {
		delete(c.entries, e.key)
		c.evictions++
	}
}

// Cleanup proactively purges expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, v := range c.entries {
		if now.After(v.ExpiresAt) {
			delete(c.entries, k)
			c.evictions++
			removed++
		}
	}
	return removed
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports size, hit rate, access distribution, and an estimated
// memory footprint.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	if c.maxSize > 0 {
		s.UtilizationRatio = float64(len(c.entries)) / float64(c.maxSize)
	}

	totalAccess := 0
	for _, e := range c.entries {
		totalAccess += e.AccessCount
		if e.AccessCount > s.MaxAccessCount {
			s.MaxAccessCount = e.AccessCount
		}
		// Rough per-entry footprint: struct overhead plus serialized contacts.
		s.EstimatedBytes += 256
		for _, contact := range e.Contacts {
			s.EstimatedBytes += int64(len(contact.Name) + len(contact.Bio) + len(contact.Email) + len(contact.Title) + 128)
		}
	}
	if len(c.entries) > 0 {
		s.AvgAccessCount = float64(totalAccess) / float64(len(c.entries))
	}
	return s
}

// OptimizeConfiguration recommends TTL/size/interval adjustments from the
// observed hit rate and occupancy: low hit rate raises TTL, very high hit
// rate lowers it; near-full caches grow, near-empty caches shrink.
func (c *Cache) OptimizeConfiguration() Recommendation {
	s := c.Stats()
	rec := Recommendation{TTL: c.ttl, MaxSize: c.maxSize, CleanupInterval: c.interval}

	observed := s.Hits + s.Misses
	if observed >= 20 {
		if s.HitRate < 0.5 {
			rec.TTL = c.ttl * 2
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("hit rate %.2f below 0.5; raising TTL", s.HitRate))
		} else if s.HitRate > 0.8 {
			rec.TTL = c.ttl / 2
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("hit rate %.2f above 0.8; lowering TTL", s.HitRate))
		}
	}

	if s.UtilizationRatio > 0.9 {
		rec.MaxSize = c.maxSize + c.maxSize/2
		rec.CleanupInterval = c.interval / 2
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("utilization %.2f above 0.9; growing max size", s.UtilizationRatio))
	} else if s.UtilizationRatio < 0.3 && s.Size > 0 {
		rec.MaxSize = c.maxSize / 2
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("utilization %.2f below 0.3; shrinking max size", s.UtilizationRatio))
	}
	return rec
}

// Export serializes all non-expired entries for cold-start warming.
func (c *Cache) Export() ([]byte, error) {
	now := time.Now()
	c.mu.Lock()
	live := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if now.Before(e.ExpiresAt) {
			live = append(live, e)
		}
	}
	c.mu.Unlock()

	sort.Slice(live, func(i, j int) bool { return live[i].Key < live[j].Key })
	data, err := json.Marshal(live)
	if err != nil {
		return nil, &CacheError{Op: "export", Err: err}
	}
	return data, nil
}

// Import loads previously exported entries, skipping expired ones and
// respecting the size cap. Returns how many entries were loaded.
func (c *Cache) Import(data []byte) (int, error) {
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, &CacheError{Op: "import", Err: err}
	}

	now := time.Now()
	loaded := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if now.After(e.ExpiresAt) {
			continue
		}
		if len(c.entries) >= c.maxSize {
			break
		}
		c.entries[e.Key] = e
		loaded++
	}
	return loaded, nil
}
