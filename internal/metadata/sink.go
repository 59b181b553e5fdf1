package metadata

import "time"

// MetadataSink is the single port every crawl-pipeline package writes
// observability events through. It is structured-logging only: nothing
// reachable from a MetadataSink call may feed back into control flow.
type MetadataSink interface {
	// RecordFetch logs the outcome of a page fetch.
	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		crawlDepth int,
	)

	// RecordAssetFetch logs the outcome of a non-page asset fetch.
	RecordAssetFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		retryCount int,
	)

	// RecordError logs a classified failure. cause is observational only.
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	// RecordArtifact logs a file this crawl wrote to disk.
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)

	CrawlFinalizer
}

// CrawlFinalizer records the one terminal summary of a completed crawl.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(
		totalPages int,
		totalErrors int,
		totalAssets int,
		duration time.Duration,
	)
}

// NoopSink is a zero-value MetadataSink that discards every event. Tests
// embed it to get a complete MetadataSink for free and selectively override
// just the methods they want to assert against.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int) {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)         {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {
}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute) {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration) {}
