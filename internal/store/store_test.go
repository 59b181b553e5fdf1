package store_test

import (
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/store"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "linkharvest.db")
	s, err := store.Open(dbPath, &metadata.NoopSink{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestSQLiteStore_UpsertURL_InsertThenUpdate(t *testing.T) {
	s := openTestStore(t)

	outcome, err := s.UpsertURL("https://example.com/a", nil, strPtr("crawl"), nil, nil, nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !outcome.IsNew() {
		t.Fatal("expected first upsert to report is_new=true")
	}
	firstSeen := outcome.FirstSeen()

	// Second upsert: canonical is set, discoveredVia is nil so the existing
	// value must be preserved by COALESCE.
	outcome2, err := s.UpsertURL("https://example.com/a", strPtr("https://example.com/a/"), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if outcome2.IsNew() {
		t.Fatal("expected second upsert to report is_new=false")
	}
	if outcome2.FirstSeen() != firstSeen {
		t.Fatalf("expected first_seen to stay %d, got %d", firstSeen, outcome2.FirstSeen())
	}
}

func TestSQLiteStore_TouchURLBySource(t *testing.T) {
	s := openTestStore(t)

	outcome, err := s.TouchURLBySource("site-1", "https://example.com/a")
	if err != nil {
		t.Fatalf("first touch: %v", err)
	}
	if !outcome.IsNew() {
		t.Fatal("expected first touch to report is_new=true")
	}

	outcome2, err := s.TouchURLBySource("site-1", "https://example.com/a")
	if err != nil {
		t.Fatalf("second touch: %v", err)
	}
	if outcome2.IsNew() {
		t.Fatal("expected second touch to report is_new=false")
	}
}

func TestSQLiteStore_RecordDiscovery_NewPairIncludesParentRow(t *testing.T) {
	s := openTestStore(t)

	isNew, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, strPtr("crawl"), nil, strPtr("2024-01-01"))
	if err != nil {
		t.Fatalf("RecordDiscovery: %v", err)
	}
	if !isNew {
		t.Fatal("expected first RecordDiscovery to report a new pair")
	}

	lastSeen, found, err := s.GetLastSeen("https://example.com/a")
	if err != nil {
		t.Fatalf("GetLastSeen: %v", err)
	}
	if !found {
		t.Fatal("expected urls row to exist after RecordDiscovery")
	}
	if lastSeen == 0 {
		t.Fatal("expected non-zero last_seen")
	}

	isNew2, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("second RecordDiscovery: %v", err)
	}
	if isNew2 {
		t.Fatal("expected second RecordDiscovery to report an existing pair")
	}
}

func TestSQLiteStore_SetAndGetResourceEtagLastmod(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetResourceEtagLastmod("https://example.com/feed.xml", strPtr(`"etag-1"`), strPtr("2024-01-01T00:00:00Z")); err != nil {
		t.Fatalf("SetResourceEtagLastmod: %v", err)
	}

	etag, lastmod, err := s.GetResourceEtagLastmod("https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("GetResourceEtagLastmod: %v", err)
	}
	if etag == nil || *etag != `"etag-1"` {
		t.Fatalf("expected etag %q, got %v", `"etag-1"`, etag)
	}
	if lastmod == nil || *lastmod != "2024-01-01T00:00:00Z" {
		t.Fatalf("expected lastmod, got %v", lastmod)
	}

	// A nil update must not clobber the stored etag (COALESCE semantics).
	if err := s.SetResourceEtagLastmod("https://example.com/feed.xml", nil, nil); err != nil {
		t.Fatalf("second SetResourceEtagLastmod: %v", err)
	}
	etag2, _, err := s.GetResourceEtagLastmod("https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("GetResourceEtagLastmod after no-op update: %v", err)
	}
	if etag2 == nil || *etag2 != `"etag-1"` {
		t.Fatalf("expected etag to survive nil update, got %v", etag2)
	}
}

func TestSQLiteStore_GetResourceEtagLastmod_NotFound(t *testing.T) {
	s := openTestStore(t)

	etag, lastmod, err := s.GetResourceEtagLastmod("https://example.com/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if etag != nil || lastmod != nil {
		t.Fatalf("expected nil/nil for missing resource, got %v/%v", etag, lastmod)
	}
}

func TestSQLiteStore_GetLastSeen_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.GetLastSeen("https://example.com/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a URL never recorded")
	}
}

func TestSQLiteStore_QueryNewURLs_WindowAndOrdering(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, nil, nil, strPtr("2024-01-01")); err != nil {
		t.Fatalf("RecordDiscovery a: %v", err)
	}
	if _, err := s.RecordDiscovery("site-1", "https://example.com/b", nil, nil, nil, nil); err != nil {
		t.Fatalf("RecordDiscovery b: %v", err)
	}

	lastSeen, _, err := s.GetLastSeen("https://example.com/a")
	if err != nil {
		t.Fatalf("GetLastSeen: %v", err)
	}

	records, err := s.QueryNewURLs(lastSeen-10, lastSeen+10)
	if err != nil {
		t.Fatalf("QueryNewURLs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records in window, got %d", len(records))
	}
	if records[0].URL != "https://example.com/a" {
		t.Errorf("expected first record for /a, got %s", records[0].URL)
	}
	if records[0].Lastmod == nil || *records[0].Lastmod != "2024-01-01" {
		t.Errorf("expected lastmod 2024-01-01 for /a, got %v", records[0].Lastmod)
	}
}

func TestSQLiteStore_QueryLatestAll(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, nil, nil, nil); err != nil {
		t.Fatalf("RecordDiscovery: %v", err)
	}

	lastSeen, _, err := s.GetLastSeen("https://example.com/a")
	if err != nil {
		t.Fatalf("GetLastSeen: %v", err)
	}

	records, err := s.QueryLatestAll(lastSeen)
	if err != nil {
		t.Fatalf("QueryLatestAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].SourceID != "site-1" {
		t.Errorf("expected source_id site-1, got %s", records[0].SourceID)
	}
}

func TestSQLiteStore_CountsForSite(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, nil, nil, nil); err != nil {
		t.Fatalf("RecordDiscovery a: %v", err)
	}
	if _, err := s.RecordDiscovery("site-1", "https://example.com/b", nil, nil, nil, nil); err != nil {
		t.Fatalf("RecordDiscovery b: %v", err)
	}
	// Re-observe a: still "new" by the approximate first_seen==last_seen
	// predicate since both happen within the same second in a fast test run,
	// but total_seen must not double count the pair.
	if _, err := s.RecordDiscovery("site-1", "https://example.com/a", nil, nil, nil, nil); err != nil {
		t.Fatalf("RecordDiscovery a again: %v", err)
	}

	counts, err := s.CountsForSite("site-1")
	if err != nil {
		t.Fatalf("CountsForSite: %v", err)
	}
	if counts.TotalSeen != 2 {
		t.Errorf("expected total_seen=2, got %d", counts.TotalSeen)
	}
	if counts.NewCount < 1 {
		t.Errorf("expected at least 1 new row, got %d", counts.NewCount)
	}
}

func TestSQLiteStore_UpsertSource(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertSource("site-1", "crawl", strPtr("https://example.com"), `{"max_depth":2}`); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	// Upserting again with different kind must not error (ON CONFLICT update).
	if err := s.UpsertSource("site-1", "sitemap", strPtr("https://example.com"), `{"max_depth":3}`); err != nil {
		t.Fatalf("second UpsertSource: %v", err)
	}
}

func TestSQLiteStore_InterfaceCompliance(t *testing.T) {
	var _ store.Store = (*store.SQLiteStore)(nil)
}
