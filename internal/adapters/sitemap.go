package adapters

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/rohmanhakim/linkharvest/internal/fetcher"
)

/*
Sitemap adapter

Parses the sitemaps.org/0.9 namespace. A sitemapindex/sitemap/loc entry is
fetched once and its urlset children flattened into the stream; a nested
index inside that child is ignored — recursion is bounded to one level.
*/

type SitemapConfig struct {
	Sitemap      string
	RateLimitRPS float64
	UserAgent    string
	Headers      map[string]string
}

type xmlSitemapURLEntry struct {
	Loc     string `xml:"loc"`
	Lastmod string `xml:"lastmod"`
}

type xmlSitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type SitemapAdapter struct {
	siteID string
	cfg    SitemapConfig
	ctx    Context
}

func NewSitemapAdapter(siteID string, cfg SitemapConfig, adapterCtx Context) *SitemapAdapter {
	return &SitemapAdapter{siteID: siteID, cfg: cfg, ctx: adapterCtx}
}

func (a *SitemapAdapter) Discover(ctx context.Context) <-chan Discovered {
	out := make(chan Discovered)
	go func() {
		defer close(out)
		a.run(ctx, out)
	}()
	return out
}

// parseSitemapXML streams the document once, reporting each <url> and
// <sitemap> element it encounters regardless of nesting depth — the caller
// decides what to do with index entries found inside an already-recursed
// child document.
func parseSitemapXML(body []byte) ([]xmlSitemapURLEntry, []xmlSitemapIndexEntry, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var urls []xmlSitemapURLEntry
	var indexes []xmlSitemapIndexEntry

	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return urls, indexes, nil
			}
			return urls, indexes, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "url":
			var entry xmlSitemapURLEntry
			if err := decoder.DecodeElement(&entry, &start); err != nil {
				return urls, indexes, err
			}
			if entry.Loc != "" {
				urls = append(urls, entry)
			}
		case "sitemap":
			var entry xmlSitemapIndexEntry
			if err := decoder.DecodeElement(&entry, &start); err != nil {
				return urls, indexes, err
			}
			if entry.Loc != "" {
				indexes = append(indexes, entry)
			}
		}
	}
}

func (a *SitemapAdapter) run(ctx context.Context, out chan<- Discovered) {
	body, ok := a.fetchOne(ctx, a.cfg.Sitemap)
	if !ok {
		return
	}

	urls, indexes, err := parseSitemapXML(body)
	if err != nil {
		a.ctx.Counters.IncErrors()
		return
	}
	a.ctx.Counters.IncParsed()

	for _, entry := range urls {
		if !a.yield(ctx, out, entry) {
			return
		}
	}

	for _, index := range indexes {
		childBody, ok := a.fetchOne(ctx, index.Loc)
		if !ok {
			continue
		}
		childURLs, _, err := parseSitemapXML(childBody)
		if err != nil {
			a.ctx.Counters.IncErrors()
			continue
		}
		a.ctx.Counters.IncParsed()
		for _, entry := range childURLs {
			if !a.yield(ctx, out, entry) {
				return
			}
		}
	}
}

func (a *SitemapAdapter) yield(ctx context.Context, out chan<- Discovered, entry xmlSitemapURLEntry) bool {
	discovered := Discovered{URL: entry.Loc, Source: SourceSitemap}
	if entry.Lastmod != "" {
		lastmod := entry.Lastmod
		discovered.Lastmod = &lastmod
	}
	select {
	case out <- discovered:
		a.ctx.Counters.IncDiscovered()
		return true
	case <-ctx.Done():
		return false
	}
}

// fetchOne performs the shared robots/rate-limit/conditional-GET preflight
// for a single sitemap document (top-level or a recursed child) and returns
// its body, or ok=false if it must not (or could not) be fetched.
func (a *SitemapAdapter) fetchOne(ctx context.Context, rawURL string) ([]byte, bool) {
	rps := a.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1.0
	}

	target, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		a.ctx.Counters.IncErrors()
		return nil, false
	}

	if !checkRobots(a.ctx.Robot, a.ctx.MetadataSink, "SitemapAdapter.Discover", *target, a.ctx.Counters) {
		return nil, false
	}

	if a.ctx.RateLimiter != nil {
		a.ctx.RateLimiter.AwaitSlot(target.Host, rps)
	}

	condition := fetcher.ConditionalGet{ExtraHeaders: mergeHeaders(a.cfg.UserAgent, a.cfg.Headers)}
	if a.ctx.Store != nil {
		if etag, lastmod, err := a.ctx.Store.GetResourceEtagLastmod(rawURL); err == nil {
			if etag != nil {
				condition.ETag = *etag
			}
			if lastmod != nil {
				condition.LastModified = *lastmod
			}
		}
	}

	result, fetchErr := a.ctx.Fetcher.FetchConditional(ctx, 0, *target, condition, defaultRetryParam)
	if fetchErr != nil {
		a.ctx.Counters.IncErrors()
		return nil, false
	}
	a.ctx.Counters.IncFetched()
	a.ctx.Counters.RecordStatus(result.Code())

	if result.Code() == http.StatusNotModified {
		return nil, false
	}
	if result.Code() != http.StatusOK {
		a.ctx.Counters.IncErrors()
		return nil, false
	}

	if a.ctx.Store != nil {
		headers := result.Headers()
		a.ctx.Store.SetResourceEtagLastmod(rawURL, headerPtr(headers, "Etag"), headerPtr(headers, "Last-Modified"))
	}

	return result.Body(), true
}
