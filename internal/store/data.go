package store

// UpsertOutcome reports whether an upsert_url/touch_url_by_source call
// inserted a fresh row and the row's first_seen timestamp (unix seconds).
type UpsertOutcome struct {
	isNew     bool
	firstSeen int64
}

func (o UpsertOutcome) IsNew() bool {
	return o.isNew
}

func (o UpsertOutcome) FirstSeen() int64 {
	return o.firstSeen
}

// NewURLRecord is one row of query_new_urls: a (source, url) pair whose
// first_seen falls inside the queried window, joined against urls.lastmod.
type NewURLRecord struct {
	SourceID  string
	URL       string
	FirstSeen int64
	Lastmod   *string
}

// LatestURLRecord is one row of query_latest_all: a (source, url) pair
// ordered by last_seen, joined against urls.lastmod.
type LatestURLRecord struct {
	SourceID string
	URL      string
	LastSeen int64
	Lastmod  *string
}

// SiteCounts is the result of counts_for_site: rows whose first_seen equals
// last_seen count as "new" (approximate — a row re-observed in the same
// second as its insertion also registers as new; accepted limitation).
type SiteCounts struct {
	NewCount  int
	TotalSeen int
}
