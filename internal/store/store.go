package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/pkg/failure"
	"github.com/rohmanhakim/linkharvest/pkg/fileutil"
)

/*
Responsibilities

- Own the single embedded SQL database file shared by every worker
- Enforce WAL + synchronous=NORMAL so one writer and many readers coexist
- Upsert URL observations with COALESCE-merge semantics
- Serve the diff queries the runner uses to emit its output artifacts

Each worker opens its own *sql.DB against the same file; sqlite's WAL mode
is what makes that safe. A recorded URL observation (upsert_url +
touch_url_by_source) always happens inside one short transaction so an
observer never sees the pair row without its parent.
*/

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	base TEXT,
	cfg TEXT
);

CREATE TABLE IF NOT EXISTS urls (
	url TEXT PRIMARY KEY,
	canonical TEXT,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	discovered_via TEXT,
	http_status INTEGER,
	lastmod TEXT,
	etag TEXT
);

CREATE TABLE IF NOT EXISTS url_by_source (
	source_id TEXT NOT NULL,
	url TEXT NOT NULL,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	PRIMARY KEY (source_id, url)
);

CREATE INDEX IF NOT EXISTS idx_urls_last_seen ON urls(last_seen);
CREATE INDEX IF NOT EXISTS idx_ubs_last_seen ON url_by_source(last_seen);
`

type Store interface {
	UpsertSource(id string, kind string, base *string, cfgJSON string) failure.ClassifiedError
	UpsertURL(
		url string,
		canonical *string,
		discoveredVia *string,
		httpStatus *int,
		lastmod *string,
		etag *string,
	) (UpsertOutcome, failure.ClassifiedError)
	TouchURLBySource(sourceID string, url string) (UpsertOutcome, failure.ClassifiedError)
	RecordDiscovery(
		sourceID string,
		url string,
		canonical *string,
		discoveredVia *string,
		httpStatus *int,
		lastmod *string,
	) (isNewPair bool, err failure.ClassifiedError)
	SetResourceEtagLastmod(url string, etag *string, lastmod *string) failure.ClassifiedError
	GetResourceEtagLastmod(url string) (etag *string, lastmod *string, err failure.ClassifiedError)
	GetLastSeen(url string) (lastSeen int64, found bool, err failure.ClassifiedError)
	QueryNewURLs(startTs int64, endTs int64) ([]NewURLRecord, failure.ClassifiedError)
	QueryLatestAll(sinceTs int64) ([]LatestURLRecord, failure.ClassifiedError)
	CountsForSite(sourceID string) (SiteCounts, failure.ClassifiedError)
	Close() failure.ClassifiedError
}

type SQLiteStore struct {
	db           *sql.DB
	metadataSink metadata.MetadataSink
}

// Open creates (or attaches to) the sqlite database file at path, ensuring
// its parent directory exists and the schema is applied. Safe to call once
// per worker against the same file: WAL mode permits concurrent readers
// alongside the single writer each worker transaction briefly becomes.
func Open(path string, metadataSink metadata.MetadataSink) (*SQLiteStore, failure.ClassifiedError) {
	if dir := filepath.Dir(path); dir != "." {
		if fileErr := fileutil.EnsureDir(dir); fileErr != nil {
			return nil, &StoreError{
				Message:   fileErr.Error(),
				Retryable: false,
				Cause:     ErrCauseOpenFailed,
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{
			Message:   fmt.Sprintf("open %s: %v", path, err),
			Retryable: false,
			Cause:     ErrCauseOpenFailed,
		}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, &StoreError{
			Message:   fmt.Sprintf("set WAL mode: %v", err),
			Retryable: false,
			Cause:     ErrCauseSchemaSetup,
		}
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, &StoreError{
			Message:   fmt.Sprintf("set synchronous=NORMAL: %v", err),
			Retryable: false,
			Cause:     ErrCauseSchemaSetup,
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, &StoreError{
			Message:   fmt.Sprintf("apply schema: %v", err),
			Retryable: false,
			Cause:     ErrCauseSchemaSetup,
		}
	}

	return &SQLiteStore{db: db, metadataSink: metadataSink}, nil
}

func (s *SQLiteStore) Close() failure.ClassifiedError {
	if err := s.db.Close(); err != nil {
		return &StoreError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseOpenFailed,
		}
	}
	return nil
}

func (s *SQLiteStore) recordError(callerMethod string, url string, err *StoreError) {
	attrs := []metadata.Attribute{}
	if url != "" {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrURL, url))
	}
	s.metadataSink.RecordError(
		time.Now(),
		"store",
		callerMethod,
		mapStoreErrorToMetadataCause(err),
		err.Error(),
		attrs,
	)
}

func (s *SQLiteStore) UpsertSource(id string, kind string, base *string, cfgJSON string) failure.ClassifiedError {
	_, err := s.db.Exec(
		`INSERT INTO sources(id, kind, base, cfg) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, base=excluded.base, cfg=excluded.cfg`,
		id, kind, base, cfgJSON,
	)
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.UpsertSource", "", storeErr)
		return storeErr
	}
	return nil
}

// UpsertURL inserts a urls row with first_seen=last_seen=now if absent;
// otherwise bumps last_seen and COALESCE-merges every other nullable
// column so an existing non-null value always wins over a nil argument.
func (s *SQLiteStore) UpsertURL(
	url string,
	canonical *string,
	discoveredVia *string,
	httpStatus *int,
	lastmod *string,
	etag *string,
) (UpsertOutcome, failure.ClassifiedError) {
	return s.upsertURLTx(s.db, url, canonical, discoveredVia, httpStatus, lastmod, etag)
}

func (s *SQLiteStore) upsertURLTx(
	exec execer,
	url string,
	canonical *string,
	discoveredVia *string,
	httpStatus *int,
	lastmod *string,
	etag *string,
) (UpsertOutcome, failure.ClassifiedError) {
	now := time.Now().Unix()

	var firstSeen int64
	isNew := false
	err := exec.QueryRow(`SELECT first_seen FROM urls WHERE url=?`, url).Scan(&firstSeen)
	switch {
	case err == sql.ErrNoRows:
		isNew = true
		firstSeen = now
		_, err = exec.Exec(
			`INSERT INTO urls(url, canonical, first_seen, last_seen, discovered_via, http_status, lastmod, etag)
			 VALUES(?,?,?,?,?,?,?,?)`,
			url, canonical, now, now, discoveredVia, httpStatus, lastmod, etag,
		)
	case err != nil:
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.UpsertURL", url, storeErr)
		return UpsertOutcome{}, storeErr
	default:
		_, err = exec.Exec(
			`UPDATE urls SET
				canonical=COALESCE(?, canonical),
				last_seen=?,
				discovered_via=COALESCE(?, discovered_via),
				http_status=COALESCE(?, http_status),
				lastmod=COALESCE(?, lastmod),
				etag=COALESCE(?, etag)
			 WHERE url=?`,
			canonical, now, discoveredVia, httpStatus, lastmod, etag, url,
		)
	}
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.UpsertURL", url, storeErr)
		return UpsertOutcome{}, storeErr
	}

	return UpsertOutcome{isNew: isNew, firstSeen: firstSeen}, nil
}

// TouchURLBySource applies the same insert-or-bump pattern as UpsertURL to
// the (source_id, url) pair table.
func (s *SQLiteStore) TouchURLBySource(sourceID string, url string) (UpsertOutcome, failure.ClassifiedError) {
	return s.touchURLBySourceTx(s.db, sourceID, url)
}

func (s *SQLiteStore) touchURLBySourceTx(exec execer, sourceID string, url string) (UpsertOutcome, failure.ClassifiedError) {
	now := time.Now().Unix()

	var firstSeen int64
	isNew := false
	err := exec.QueryRow(
		`SELECT first_seen FROM url_by_source WHERE source_id=? AND url=?`, sourceID, url,
	).Scan(&firstSeen)
	switch {
	case err == sql.ErrNoRows:
		isNew = true
		firstSeen = now
		_, err = exec.Exec(
			`INSERT INTO url_by_source(source_id, url, first_seen, last_seen) VALUES(?,?,?,?)`,
			sourceID, url, now, now,
		)
	case err != nil:
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.TouchURLBySource", url, storeErr)
		return UpsertOutcome{}, storeErr
	default:
		_, err = exec.Exec(
			`UPDATE url_by_source SET last_seen=? WHERE source_id=? AND url=?`,
			now, sourceID, url,
		)
	}
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.TouchURLBySource", url, storeErr)
		return UpsertOutcome{}, storeErr
	}

	return UpsertOutcome{isNew: isNew, firstSeen: firstSeen}, nil
}

// RecordDiscovery runs upsert_url and touch_url_by_source inside one short
// transaction, per spec: an observer must never see the pair row without
// its parent urls row.
func (s *SQLiteStore) RecordDiscovery(
	sourceID string,
	url string,
	canonical *string,
	discoveredVia *string,
	httpStatus *int,
	lastmod *string,
) (bool, failure.ClassifiedError) {
	tx, err := s.db.Begin()
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseTxFailed}
		s.recordError("SQLiteStore.RecordDiscovery", url, storeErr)
		return false, storeErr
	}

	if _, classifiedErr := s.upsertURLTx(tx, url, canonical, discoveredVia, httpStatus, lastmod, nil); classifiedErr != nil {
		tx.Rollback()
		return false, classifiedErr
	}

	pairOutcome, classifiedErr := s.touchURLBySourceTx(tx, sourceID, url)
	if classifiedErr != nil {
		tx.Rollback()
		return false, classifiedErr
	}

	if err := tx.Commit(); err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseTxFailed}
		s.recordError("SQLiteStore.RecordDiscovery", url, storeErr)
		return false, storeErr
	}

	return pairOutcome.IsNew(), nil
}

// SetResourceEtagLastmod persists conditional-GET state for a resource URL
// (a feed, sitemap, or API endpoint) directly on its urls row, inserting a
// bare row if one doesn't already exist.
func (s *SQLiteStore) SetResourceEtagLastmod(url string, etag *string, lastmod *string) failure.ClassifiedError {
	now := time.Now().Unix()

	var exists string
	err := s.db.QueryRow(`SELECT url FROM urls WHERE url=?`, url).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(
			`INSERT INTO urls(url, canonical, first_seen, last_seen, discovered_via, http_status, lastmod, etag)
			 VALUES(?, NULL, ?, ?, NULL, NULL, ?, ?)`,
			url, now, now, lastmod, etag,
		)
	case err != nil:
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.SetResourceEtagLastmod", url, storeErr)
		return storeErr
	default:
		_, err = s.db.Exec(
			`UPDATE urls SET last_seen=?, lastmod=COALESCE(?, lastmod), etag=COALESCE(?, etag) WHERE url=?`,
			now, lastmod, etag, url,
		)
	}
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.SetResourceEtagLastmod", url, storeErr)
		return storeErr
	}
	return nil
}

func (s *SQLiteStore) GetResourceEtagLastmod(url string) (*string, *string, failure.ClassifiedError) {
	var etag, lastmod sql.NullString
	err := s.db.QueryRow(`SELECT etag, lastmod FROM urls WHERE url=?`, url).Scan(&etag, &lastmod)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.GetResourceEtagLastmod", url, storeErr)
		return nil, nil, storeErr
	}
	return nullStringPtr(etag), nullStringPtr(lastmod), nil
}

// GetLastSeen looks up the stored last_seen for a URL. Supplements spec §4.5:
// the crawl adapter's recrawl_ttl_seconds check (§4.7.4) needs the raw
// last_seen timestamp, not just the etag/lastmod pair.
func (s *SQLiteStore) GetLastSeen(url string) (int64, bool, failure.ClassifiedError) {
	var lastSeen int64
	err := s.db.QueryRow(`SELECT last_seen FROM urls WHERE url=?`, url).Scan(&lastSeen)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.GetLastSeen", url, storeErr)
		return 0, false, storeErr
	}
	return lastSeen, true, nil
}

func (s *SQLiteStore) QueryNewURLs(startTs int64, endTs int64) ([]NewURLRecord, failure.ClassifiedError) {
	rows, err := s.db.Query(
		`SELECT source_id, url, first_seen,
			(SELECT lastmod FROM urls u WHERE u.url = url_by_source.url)
		 FROM url_by_source
		 WHERE first_seen BETWEEN ? AND ?
		 ORDER BY first_seen ASC`,
		startTs, endTs,
	)
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.QueryNewURLs", "", storeErr)
		return nil, storeErr
	}
	defer rows.Close()

	var records []NewURLRecord
	for rows.Next() {
		var rec NewURLRecord
		var lastmod sql.NullString
		if err := rows.Scan(&rec.SourceID, &rec.URL, &rec.FirstSeen, &lastmod); err != nil {
			storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
			s.recordError("SQLiteStore.QueryNewURLs", rec.URL, storeErr)
			return nil, storeErr
		}
		rec.Lastmod = nullStringPtr(lastmod)
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLiteStore) QueryLatestAll(sinceTs int64) ([]LatestURLRecord, failure.ClassifiedError) {
	rows, err := s.db.Query(
		`SELECT source_id, url, last_seen,
			(SELECT lastmod FROM urls u WHERE u.url = url_by_source.url)
		 FROM url_by_source
		 WHERE last_seen >= ?
		 ORDER BY last_seen ASC`,
		sinceTs,
	)
	if err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.QueryLatestAll", "", storeErr)
		return nil, storeErr
	}
	defer rows.Close()

	var records []LatestURLRecord
	for rows.Next() {
		var rec LatestURLRecord
		var lastmod sql.NullString
		if err := rows.Scan(&rec.SourceID, &rec.URL, &rec.LastSeen, &lastmod); err != nil {
			storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
			s.recordError("SQLiteStore.QueryLatestAll", rec.URL, storeErr)
			return nil, storeErr
		}
		rec.Lastmod = nullStringPtr(lastmod)
		records = append(records, rec)
	}
	return records, nil
}

// CountsForSite: new_count counts rows whose first_seen == last_seen. The
// equality predicate is approximate — a row re-observed in the same second
// as its insertion also registers as "new" — and this is an accepted
// limitation, not a bug to fix.
func (s *SQLiteStore) CountsForSite(sourceID string) (SiteCounts, failure.ClassifiedError) {
	var totalSeen int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM url_by_source WHERE source_id=?`, sourceID,
	).Scan(&totalSeen); err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.CountsForSite", "", storeErr)
		return SiteCounts{}, storeErr
	}

	var newCount int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM url_by_source WHERE source_id=? AND first_seen = last_seen`, sourceID,
	).Scan(&newCount); err != nil {
		storeErr := &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		s.recordError("SQLiteStore.CountsForSite", "", storeErr)
		return SiteCounts{}, storeErr
	}

	return SiteCounts{NewCount: newCount, TotalSeen: totalSeen}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting upsertURLTx and
// touchURLBySourceTx run standalone or as part of RecordDiscovery's transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
