package adapters

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mmcdole/gofeed"
	"github.com/rohmanhakim/linkharvest/internal/fetcher"
)

/*
RSS adapter

Single GET of the configured feed URL, parsed leniently as RSS or Atom. Each
entry yields one Discovered, preferring <link> and falling back to the
entry's id/guid, with <updated> or <published> as lastmod.
*/

type RSSConfig struct {
	Feed         string
	RateLimitRPS float64
	UserAgent    string
	Headers      map[string]string
}

type RSSAdapter struct {
	siteID string
	cfg    RSSConfig
	ctx    Context
}

func NewRSSAdapter(siteID string, cfg RSSConfig, adapterCtx Context) *RSSAdapter {
	return &RSSAdapter{siteID: siteID, cfg: cfg, ctx: adapterCtx}
}

func (a *RSSAdapter) Discover(ctx context.Context) <-chan Discovered {
	out := make(chan Discovered)
	go func() {
		defer close(out)
		a.run(ctx, out)
	}()
	return out
}

func (a *RSSAdapter) run(ctx context.Context, out chan<- Discovered) {
	rps := a.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1.0
	}

	target, parseErr := url.Parse(a.cfg.Feed)
	if parseErr != nil {
		a.ctx.Counters.IncErrors()
		return
	}

	if !checkRobots(a.ctx.Robot, a.ctx.MetadataSink, "RSSAdapter.Discover", *target, a.ctx.Counters) {
		return
	}

	if a.ctx.RateLimiter != nil {
		a.ctx.RateLimiter.AwaitSlot(target.Host, rps)
	}

	condition := fetcher.ConditionalGet{ExtraHeaders: mergeHeaders(a.cfg.UserAgent, a.cfg.Headers)}
	if a.ctx.Store != nil {
		if etag, lastmod, err := a.ctx.Store.GetResourceEtagLastmod(a.cfg.Feed); err == nil {
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
		return
	}
	a.ctx.Counters.IncFetched()
	a.ctx.Counters.RecordStatus(result.Code())

	if result.Code() == http.StatusNotModified {
		return
	}
	if result.Code() != http.StatusOK {
		a.ctx.Counters.IncErrors()
		return
	}

	if a.ctx.Store != nil {
		headers := result.Headers()
		a.ctx.Store.SetResourceEtagLastmod(a.cfg.Feed, headerPtr(headers, "Etag"), headerPtr(headers, "Last-Modified"))
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(result.Body()))
	if err != nil || feed == nil {
		a.ctx.Counters.IncErrors()
		return
	}
	a.ctx.Counters.IncParsed()

	for _, item := range feed.Items {
		link := item.Link
		if link == "" {
			link = item.GUID
		}
		if link == "" {
			continue
		}

		discovered := Discovered{URL: link, Source: SourceRSS}
		lastmod := item.Updated
		if lastmod == "" {
			lastmod = item.Published
		}
		if lastmod != "" {
			discovered.Lastmod = &lastmod
		}

		select {
		case out <- discovered:
			a.ctx.Counters.IncDiscovered()
		case <-ctx.Done():
			return
		}
	}
}
