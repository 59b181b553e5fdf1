package adapters

import "sync"

/*
Responsibilities
- Define the one contract every discovery strategy implements: discover() as
  a lazy stream
- Carry the shared substrate (fetcher, robots, rate limiter, store) into each
  adapter by explicit injection, never a process-global singleton
- Bookkeep per-site counters the runner reads once discovery drains

Adapter polymorphism is a closed, tagged set (wordpress, rss, sitemap, crawl)
dispatched by a site's configured kind, not open subclassing.
*/

// Source tags where a Discovered record came from.
type Source string

const (
	SourceAPI     Source = "api"
	SourceRSS     Source = "rss"
	SourceSitemap Source = "sitemap"
	SourceCrawl   Source = "crawl"
)

// Discovered is the transient record an adapter yields for the runner to
// normalize, canonicalize and persist. Canonical is always nil here — it is
// filled in downstream by the runner's resolver step, never by an adapter.
type Discovered struct {
	URL       string
	Canonical *string
	Lastmod   *string
	Source    Source
	Meta      map[string]string
}

// Counters are updated by the adapter as it runs and, for Inserted, by the
// runner after each upsert. The runner reads them only after the adapter's
// Discover channel has been fully drained and closed.
type Counters struct {
	mu            sync.Mutex
	fetched       int
	parsed        int
	discovered    int
	inserted      int
	skippedRobots int
	errors        int
	status        map[int]int
}

func NewCounters() *Counters {
	return &Counters{status: make(map[int]int)}
}

func (c *Counters) IncFetched() {
	c.mu.Lock()
	c.fetched++
	c.mu.Unlock()
}

func (c *Counters) IncParsed() {
	c.mu.Lock()
	c.parsed++
	c.mu.Unlock()
}

func (c *Counters) IncDiscovered() {
	c.mu.Lock()
	c.discovered++
	c.mu.Unlock()
}

func (c *Counters) IncInserted() {
	c.mu.Lock()
	c.inserted++
	c.mu.Unlock()
}

func (c *Counters) IncSkippedRobots() {
	c.mu.Lock()
	c.skippedRobots++
	c.mu.Unlock()
}

func (c *Counters) IncErrors() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

func (c *Counters) RecordStatus(code int) {
	c.mu.Lock()
	c.status[code]++
	c.mu.Unlock()
}

// CountersSnapshot is an immutable, race-free copy for reporting.
type CountersSnapshot struct {
	Fetched       int
	Parsed        int
	Discovered    int
	Inserted      int
	SkippedRobots int
	Errors        int
	Status        map[int]int
}

func (c *Counters) Snapshot() CountersSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := make(map[int]int, len(c.status))
	for k, v := range c.status {
		status[k] = v
	}
	return CountersSnapshot{
		Fetched:       c.fetched,
		Parsed:        c.parsed,
		Discovered:    c.discovered,
		Inserted:      c.inserted,
		SkippedRobots: c.skippedRobots,
		Errors:        c.errors,
		Status:        status,
	}
}
