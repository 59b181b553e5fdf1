package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rohmanhakim/linkharvest/internal/adapters"
	"github.com/rohmanhakim/linkharvest/internal/store"
)

/*
Output artifact writers: new.ndjson, new.csv, per_site_counts.csv,
latest_all.csv, run.log. Out of scope per spec.md ("plain serialization of
the store's query output") — plain stdlib encoding/csv + encoding/json is
correct here, not a missed opportunity to wire a third-party dependency.

Column sets and the run.log two-line-per-site shape are grounded on
original_source/src/reports.py and runner.py's "[{sid}] start kind={kind}" /
"[{sid}] metrics: {json}" lines.
*/

type newRecord struct {
	SiteID    string  `json:"site_id"`
	URL       string  `json:"url"`
	FirstSeen int64   `json:"first_seen"`
	Lastmod   *string `json:"lastmod"`
}

// SiteCount is the per_site_counts.csv row shape; kept local to this package
// so it doesn't need to import internal/runner (which imports this package).
type SiteCount struct {
	SiteID    string
	NewCount  int
	TotalSeen int
	Errors    int
}

func isoSeconds(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
}

// WriteNewNDJSON writes one JSON object per line, UTF-8, LF-terminated.
func WriteNewNDJSON(path string, records []store.NewURLRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	for _, rec := range records {
		line := newRecord{SiteID: rec.SourceID, URL: rec.URL, FirstSeen: rec.FirstSeen, Lastmod: rec.Lastmod}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	return nil
}

func lastmodString(lastmod *string) string {
	if lastmod == nil {
		return ""
	}
	return *lastmod
}

// WriteNewCSV writes header site_id,url,first_seen_iso,lastmod.
func WriteNewCSV(path string, records []store.NewURLRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"site_id", "url", "first_seen_iso", "lastmod"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.SourceID, rec.URL, isoSeconds(rec.FirstSeen), lastmodString(rec.Lastmod)}); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteLatestAllCSV writes header site_id,url,last_seen_iso,lastmod.
func WriteLatestAllCSV(path string, records []store.LatestURLRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"site_id", "url", "last_seen_iso", "lastmod"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.SourceID, rec.URL, isoSeconds(rec.LastSeen), lastmodString(rec.Lastmod)}); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteCountsCSV writes header site_id,new_count,total_seen,errors, with
// each SiteCount's Errors in the last column. The runner leaves Errors at 0:
// per-site errors go to run.log's metrics lines and are not aggregated into
// this summary.
func WriteCountsCSV(path string, counts []SiteCount) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"site_id", "new_count", "total_seen", "errors"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := w.Write([]string{c.SiteID, fmt.Sprint(c.NewCount), fmt.Sprint(c.TotalSeen), fmt.Sprint(c.Errors)}); err != nil {
			return err
		}
	}
	return w.Error()
}

// RunLog appends freeform per-site start/metrics lines to run.log. Safe for
// concurrent use by every site worker goroutine.
type RunLog struct {
	mu   sync.Mutex
	file *os.File
}

func OpenRunLog(dir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, "run.log"))
	if err != nil {
		return nil, fmt.Errorf("create run.log: %w", err)
	}
	return &RunLog{file: f}, nil
}

func (r *RunLog) Start(siteID, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.file, "[%s] start kind=%s\n", siteID, kind)
}

func (r *RunLog) Metrics(siteID string, snapshot adapters.CountersSnapshot) {
	body, err := json.Marshal(snapshot)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		fmt.Fprintf(r.file, "[%s] metrics: <encode error: %v>\n", siteID, err)
		return
	}
	fmt.Fprintf(r.file, "[%s] metrics: %s\n", siteID, string(body))
}

func (r *RunLog) Close() error {
	return r.file.Close()
}
