package metadata

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// Recorder is the default MetadataSink/CrawlFinalizer implementation. It
// writes one logfmt line per event to stdout. It also counts pages, errors
// and assets as they are recorded; these counters are not exposed and are
// not used by RecordFinalCrawlStats.
type Recorder struct {
	worker string

	mu         sync.Mutex
	totalPages int
	totalErrs  int
	totalAsts  int
}

// NewRecorder returns a Recorder identified by worker in every log line it
// emits, so multi-worker logs can be demultiplexed.
func NewRecorder(worker string) Recorder {
	return Recorder{worker: worker}
}

func (r *Recorder) log(event string, keyvals ...interface{}) {
	kv := make([]interface{}, 0, len(keyvals)+4)
	kv = append(kv, "time", time.Now().Format(time.RFC3339Nano), "worker", r.worker, "event", event)
	kv = append(kv, keyvals...)

	enc := logfmt.NewEncoder(os.Stdout)
	if err := enc.EncodeKeyvals(kv...); err != nil {
		return
	}
	enc.EndRecord()
}

// RecordFetch logs the outcome of a page fetch.
func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	r.mu.Lock()
	r.totalPages++
	r.mu.Unlock()

	r.log("fetch",
		"url", fetchUrl,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"retries", retryCount,
		"depth", crawlDepth,
	)
}

// RecordAssetFetch logs the outcome of a non-page asset fetch.
func (r *Recorder) RecordAssetFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	r.mu.Lock()
	r.totalAsts++
	r.mu.Unlock()

	r.log("asset_fetch",
		"url", fetchUrl,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"retries", retryCount,
	)
}

// RecordError logs a classified failure. cause is observational only and
// must never be used by callers to drive retry or abort decisions.
func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	r.mu.Lock()
	r.totalErrs++
	r.mu.Unlock()

	kv := []interface{}{
		"observed_at", observedAt.Format(time.RFC3339Nano),
		"package", packageName,
		"action", action,
		"cause", strconv.Itoa(int(cause)),
		"details", details,
	}
	for _, a := range attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.log("error", kv...)
}

// RecordArtifact logs a file this crawl wrote to disk.
func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	kv := []interface{}{"kind", string(kind), "path", path}
	for _, a := range attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.log("artifact", kv...)
}

// RecordFinalCrawlStats logs the terminal summary of a completed crawl.
// It logs the values passed in, not the Recorder's own counters, and must be
// called exactly once, after crawl termination.
func (r *Recorder) RecordFinalCrawlStats(
	totalPages int,
	totalErrors int,
	totalAssets int,
	duration time.Duration,
) {
	r.log("final_stats",
		"total_pages", totalPages,
		"total_errors", totalErrors,
		"total_assets", totalAssets,
		"duration_ms", duration.Milliseconds(),
	)
}
