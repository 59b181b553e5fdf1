package adapters_test

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rohmanhakim/linkharvest/internal/adapters"
	"github.com/rohmanhakim/linkharvest/internal/fetcher"
	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/robots"
	"github.com/rohmanhakim/linkharvest/internal/store"
	"github.com/rohmanhakim/linkharvest/pkg/failure"
	"github.com/rohmanhakim/linkharvest/pkg/limiter"
)

// fakeStore is an in-memory store.Store double. Tests only exercise the
// conditional-GET cache and the recrawl-TTL/dedup lookups adapters actually
// call; the rest of the interface is satisfied with no-ops so fakeStore
// compiles against store.Store without dragging in sqlite.
type fakeStore struct {
	mu         sync.Mutex
	etags      map[string]string
	lastmods   map[string]string
	lastSeen   map[string]int64
	discovered []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		etags:    make(map[string]string),
		lastmods: make(map[string]string),
		lastSeen: make(map[string]int64),
	}
}

func (s *fakeStore) UpsertSource(id, kind string, base *string, cfgJSON string) failure.ClassifiedError {
	return nil
}

func (s *fakeStore) UpsertURL(url string, canonical, discoveredVia *string, httpStatus *int, lastmod, etag *string) (store.UpsertOutcome, failure.ClassifiedError) {
	return store.UpsertOutcome{}, nil
}

func (s *fakeStore) TouchURLBySource(sourceID, url string) (store.UpsertOutcome, failure.ClassifiedError) {
	return store.UpsertOutcome{}, nil
}

func (s *fakeStore) RecordDiscovery(sourceID, url string, canonical, discoveredVia *string, httpStatus *int, lastmod *string) (bool, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, url)
	return true, nil
}

func (s *fakeStore) SetResourceEtagLastmod(url string, etag, lastmod *string) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if etag != nil {
		s.etags[url] = *etag
	}
	if lastmod != nil {
		s.lastmods[url] = *lastmod
	}
	return nil
}

func (s *fakeStore) GetResourceEtagLastmod(url string) (*string, *string, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var etag, lastmod *string
	if v, ok := s.etags[url]; ok {
		etag = &v
	}
	if v, ok := s.lastmods[url]; ok {
		lastmod = &v
	}
	return etag, lastmod, nil
}

func (s *fakeStore) GetLastSeen(url string) (int64, bool, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastSeen[url]
	return ts, ok, nil
}

func (s *fakeStore) QueryNewURLs(startTs, endTs int64) ([]store.NewURLRecord, failure.ClassifiedError) {
	return nil, nil
}

func (s *fakeStore) QueryLatestAll(sinceTs int64) ([]store.LatestURLRecord, failure.ClassifiedError) {
	return nil, nil
}

func (s *fakeStore) CountsForSite(sourceID string) (store.SiteCounts, failure.ClassifiedError) {
	return store.SiteCounts{}, nil
}

func (s *fakeStore) Close() failure.ClassifiedError {
	return nil
}

// newTestAdapterContext wires the real fetcher, a real allow-all robot
// (backed by the same test server, which 404s robots.txt), and a real rate
// limiter with no enforced delay, matching how internal/runner builds the
// substrate it hands to each adapter.
func newTestAdapterContext(s *fakeStore) adapters.Context {
	sink := metadata.NoopSink{}

	htmlFetcher := fetcher.NewHtmlFetcher(sink)
	htmlFetcher.Init(&http.Client{}, "test-agent")

	robot := robots.NewRobot(sink)
	robot.Init("test-agent")

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(0)
	rateLimiter.SetJitter(0)

	counters := adapters.NewCounters()

	var st store.Store
	if s != nil {
		st = s
	}

	return adapters.Context{
		Fetcher:      &htmlFetcher,
		Robot:        robot,
		RateLimiter:  rateLimiter,
		Store:        st,
		Counters:     counters,
		MetadataSink: sink,
	}
}

// drain collects every record an adapter yields before its channel closes.
func drain(ch <-chan adapters.Discovered) []adapters.Discovered {
	var out []adapters.Discovered
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func newTestServer(handler http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", handler)
	return httptest.NewServer(mux)
}
