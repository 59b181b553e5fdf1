package runner

/*
Responsibilities
- Per-site worker pool, bounded by Config.Concurrency()
- Drive each site's adapter stream through normalize -> (skip-or-resolve) ->
  upsert -> touch, per spec §4.8
- Merge per-site counters and emit the run's output artifacts

Grounded on the teacher's internal/scheduler.Scheduler: the fatal/recoverable
branch idiom (`if err.Severity() == SeverityFatal { stop this worker } else {
counters.errors++; continue }`) generalizes from "single-site BFS crawl" to
"multi-site worker pool", retargeted per original_source/src/runner.py's
run_once/_process_site (ThreadPoolExecutor concurrency maps onto a bounded
goroutine pool).
*/

// SiteResult is one site worker's outcome, read by the runner after every
// worker has joined.
type SiteResult struct {
	SiteID     string
	Kind       string
	NewCount   int
	TotalSeen  int
	Errors     int
	Fetched    int
	Discovered int
	Inserted   int
}

// RunResult summarizes a completed run for the CLI's stdout summary line
// and the report writers.
type RunResult struct {
	RunID      string
	StartTs    int64
	EndTs      int64
	OutDir     string
	NewCount   int
	SitesCount int
	Sites      []SiteResult
}
