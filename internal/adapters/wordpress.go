package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rohmanhakim/linkharvest/internal/fetcher"
)

/*
WordPress adapter

Paginates the WP REST posts endpoint until pagination ends, the feed is
unmodified, or an error stops the run. Stop conditions per page:
  - 304: unchanged, no page (including later ones) has anything new
  - 400/404: end of pagination, not an error
  - any other non-200, a JSON parse failure, or an empty result list: stop
*/

type WordPressConfig struct {
	Base         string
	MaxPages     int
	RateLimitRPS float64
	UserAgent    string
	Headers      map[string]string
}

type wordPressPost struct {
	Link     string `json:"link"`
	Modified string `json:"modified"`
}

type WordPressAdapter struct {
	siteID string
	cfg    WordPressConfig
	ctx    Context
}

func NewWordPressAdapter(siteID string, cfg WordPressConfig, adapterCtx Context) *WordPressAdapter {
	return &WordPressAdapter{siteID: siteID, cfg: cfg, ctx: adapterCtx}
}

func (a *WordPressAdapter) Discover(ctx context.Context) <-chan Discovered {
	out := make(chan Discovered)
	go func() {
		defer close(out)
		a.run(ctx, out)
	}()
	return out
}

func wordPressEndpoint(base string, page int) string {
	base = strings.TrimSuffix(base, "/")
	return base + "/wp-json/wp/v2/posts?per_page=100&_fields=link,modified&orderby=date&page=" + strconv.Itoa(page)
}

func (a *WordPressAdapter) run(ctx context.Context, out chan<- Discovered) {
	maxPages := a.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	rps := a.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 1.0
	}
	extraHeaders := mergeHeaders(a.cfg.UserAgent, a.cfg.Headers)

	for page := 1; page <= maxPages; page++ {
		endpoint := wordPressEndpoint(a.cfg.Base, page)
		target, parseErr := url.Parse(endpoint)
		if parseErr != nil {
			a.ctx.Counters.IncErrors()
			return
		}

		if !checkRobots(a.ctx.Robot, a.ctx.MetadataSink, "WordPressAdapter.Discover", *target, a.ctx.Counters) {
			return
		}

		if a.ctx.RateLimiter != nil {
			a.ctx.RateLimiter.AwaitSlot(target.Host, rps)
		}

		condition := fetcher.ConditionalGet{ExtraHeaders: extraHeaders}
		if a.ctx.Store != nil {
			if etag, lastmod, err := a.ctx.Store.GetResourceEtagLastmod(endpoint); err == nil {
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
		if result.Code() == http.StatusBadRequest || result.Code() == http.StatusNotFound {
			return
		}
		if result.Code() != http.StatusOK {
			a.ctx.Counters.IncErrors()
			return
		}

		if a.ctx.Store != nil {
			headers := result.Headers()
			a.ctx.Store.SetResourceEtagLastmod(endpoint, headerPtr(headers, "Etag"), headerPtr(headers, "Last-Modified"))
		}

		var posts []wordPressPost
		if err := json.Unmarshal(result.Body(), &posts); err != nil {
			a.ctx.Counters.IncErrors()
			return
		}
		a.ctx.Counters.IncParsed()
		if len(posts) == 0 {
			return
		}

		for _, post := range posts {
			if post.Link == "" {
				continue
			}
			discovered := Discovered{URL: post.Link, Source: SourceAPI}
			if post.Modified != "" {
				lastmod := post.Modified
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
}
