package adapters_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/rohmanhakim/linkharvest/internal/adapters"
)

func TestWordPressAdapter_Discover_SinglePage(t *testing.T) {
	server := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[
			{"link": "https://example.com/post-1", "modified": "2026-01-01T00:00:00"},
			{"link": "https://example.com/post-2", "modified": "2026-01-02T00:00:00"}
		]`))
	})
	defer server.Close()

	ctx := newTestAdapterContext(newFakeStore())
	a := adapters.NewWordPressAdapter("site-a", adapters.WordPressConfig{
		Base:     server.URL,
		MaxPages: 5,
	}, ctx)

	results := drain(a.Discover(context.Background()))
	if len(results) != 2 {
		t.Fatalf("expected 2 discovered records, got %d", len(results))
	}
	if results[0].URL != "https://example.com/post-1" {
		t.Errorf("unexpected URL: %s", results[0].URL)
	}
	if results[0].Source != adapters.SourceAPI {
		t.Errorf("expected SourceAPI, got %s", results[0].Source)
	}
	if results[0].Lastmod == nil || *results[0].Lastmod != "2026-01-01T00:00:00" {
		t.Errorf("unexpected Lastmod: %v", results[0].Lastmod)
	}
}

func TestWordPressAdapter_Discover_StopsOnEmptyPage(t *testing.T) {
	pageRequests := 0
	server := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		pageRequests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if pageRequests == 1 {
			w.Write([]byte(`[{"link": "https://example.com/post-1", "modified": ""}]`))
			return
		}
		w.Write([]byte(`[]`))
	})
	defer server.Close()

	ctx := newTestAdapterContext(newFakeStore())
	a := adapters.NewWordPressAdapter("site-a", adapters.WordPressConfig{
		Base:     server.URL,
		MaxPages: 10,
	}, ctx)

	results := drain(a.Discover(context.Background()))
	if len(results) != 1 {
		t.Fatalf("expected 1 discovered record, got %d", len(results))
	}
	if pageRequests != 2 {
		t.Errorf("expected pagination to stop after the empty page, got %d requests", pageRequests)
	}
}

func TestWordPressAdapter_Discover_StopsOn404(t *testing.T) {
	server := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	ctx := newTestAdapterContext(newFakeStore())
	a := adapters.NewWordPressAdapter("site-a", adapters.WordPressConfig{
		Base: server.URL,
	}, ctx)

	results := drain(a.Discover(context.Background()))
	if len(results) != 0 {
		t.Fatalf("expected no discovered records on 404, got %d", len(results))
	}
}

func TestWordPressAdapter_Discover_StopsOn304NotModified(t *testing.T) {
	requests := 0
	server := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotModified)
	})
	defer server.Close()

	ctx := newTestAdapterContext(newFakeStore())
	a := adapters.NewWordPressAdapter("site-a", adapters.WordPressConfig{
		Base:     server.URL,
		MaxPages: 5,
	}, ctx)

	results := drain(a.Discover(context.Background()))
	if len(results) != 0 {
		t.Fatalf("expected no discovered records on 304, got %d", len(results))
	}
	if requests != 1 {
		t.Errorf("expected a single request before stopping, got %d", requests)
	}
}

func TestWordPressAdapter_Discover_DefaultsMaxPagesAndRPS(t *testing.T) {
	server := newTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	})
	defer server.Close()

	ctx := newTestAdapterContext(newFakeStore())
	a := adapters.NewWordPressAdapter("site-a", adapters.WordPressConfig{
		Base: server.URL,
	}, ctx)

	// MaxPages 0 and RateLimitRPS 0 must not panic or divide-by-zero; the
	// adapter falls back to its own defaults.
	results := drain(a.Discover(context.Background()))
	if len(results) != 0 {
		t.Fatalf("expected no discovered records, got %d", len(results))
	}
}
