package adapters

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rohmanhakim/linkharvest/internal/fetcher"
)

/*
JS crawl adapter

Same frontier, scope and TTL rules as CrawlAdapter, but bounded by
MaxRenderedPages instead of visited-set size alone, and fetching each page
twice: first a plain conditional GET (to respect 304 and avoid paying for a
render on an unchanged page), then — only on a fresh 200 — a headless render
so client-side links are present in the extracted HTML.
*/

type JSCrawlConfig struct {
	CrawlConfig
	MaxRenderedPages int
	WaitForSelector  string
}

type JSCrawlAdapter struct {
	siteID string
	cfg    JSCrawlConfig
	ctx    Context
}

func NewJSCrawlAdapter(siteID string, cfg JSCrawlConfig, adapterCtx Context) *JSCrawlAdapter {
	return &JSCrawlAdapter{siteID: siteID, cfg: cfg, ctx: adapterCtx}
}

func (a *JSCrawlAdapter) Discover(ctx context.Context) <-chan Discovered {
	out := make(chan Discovered)
	go func() {
		defer close(out)
		a.run(ctx, out)
	}()
	return out
}

func (a *JSCrawlAdapter) run(ctx context.Context, out chan<- Discovered) {
	base, parseErr := url.Parse(a.cfg.Base)
	if parseErr != nil {
		a.ctx.Counters.IncErrors()
		return
	}

	plain := &CrawlAdapter{siteID: a.siteID, cfg: a.cfg.CrawlConfig, ctx: a.ctx}
	if !plain.inScope(base) {
		return
	}

	maxDepth := a.cfg.MaxDepth
	maxRendered := a.cfg.MaxRenderedPages
	if maxRendered <= 0 {
		maxRendered = 50
	}
	rps := a.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 0.5
	}

	visited := make(map[string]bool)
	frontier := []crawlFrontierItem{{url: base.String(), depth: 0}}
	visited[base.String()] = true
	rendered := 0

	extraHeaders := mergeHeaders(a.cfg.UserAgent, a.cfg.Headers)

	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	for len(frontier) > 0 && rendered < maxRendered {
		item := frontier[0]
		frontier = frontier[1:]

		if plain.withinRecrawlTTL(item.url) {
			continue
		}

		target, parseErr := url.Parse(item.url)
		if parseErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}

		if !checkRobots(a.ctx.Robot, a.ctx.MetadataSink, "JSCrawlAdapter.Discover", *target, a.ctx.Counters) {
			continue
		}

		if a.ctx.RateLimiter != nil {
			a.ctx.RateLimiter.AwaitSlot(target.Host, rps)
		}

		condition := fetcher.ConditionalGet{ExtraHeaders: extraHeaders}
		if a.ctx.Store != nil {
			if etag, lastmod, err := a.ctx.Store.GetResourceEtagLastmod(item.url); err == nil {
				if etag != nil {
					condition.ETag = *etag
				}
				if lastmod != nil {
					condition.LastModified = *lastmod
				}
			}
		}

		preflight, fetchErr := a.ctx.Fetcher.FetchConditional(ctx, item.depth, *target, condition, defaultRetryParam)
		if fetchErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}
		a.ctx.Counters.IncFetched()
		a.ctx.Counters.RecordStatus(preflight.Code())

		if preflight.Code() == http.StatusNotModified {
			continue
		}
		if preflight.Code() != http.StatusOK {
			a.ctx.Counters.IncErrors()
			continue
		}

		if a.ctx.Store != nil {
			headers := preflight.Headers()
			a.ctx.Store.SetResourceEtagLastmod(item.url, headerPtr(headers, "Etag"), headerPtr(headers, "Last-Modified"))
		}

		html, renderErr := a.render(browserCtx, item.url)
		rendered++
		if renderErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}

		links, extractErr := extractLinks(*target, []byte(html))
		if extractErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}
		a.ctx.Counters.IncParsed()

		for _, link := range links {
			linkURL, parseErr := url.Parse(link)
			if parseErr != nil || !plain.inScope(linkURL) {
				continue
			}
			normalized := linkURL.String()

			discovered := Discovered{URL: normalized, Source: SourceCrawl}
			select {
			case out <- discovered:
				a.ctx.Counters.IncDiscovered()
			case <-ctx.Done():
				return
			}

			if visited[normalized] {
				continue
			}
			if item.depth+1 > maxDepth {
				continue
			}
			visited[normalized] = true
			frontier = append(frontier, crawlFrontierItem{url: normalized, depth: item.depth + 1})
		}
	}
}

// render navigates to rawURL in the shared headless tab, optionally waits for
// a selector (a timeout here is not a failure — the page may simply never
// show that element), and returns the rendered outer HTML. Bounded to 30s
// for navigation and, separately, 30s for the selector wait.
func (a *JSCrawlAdapter) render(browserCtx context.Context, rawURL string) (string, error) {
	navCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var renderedHTML string
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return "", err
	}

	if a.cfg.WaitForSelector != "" {
		selCtx, selCancel := context.WithTimeout(browserCtx, 30*time.Second)
		_ = chromedp.Run(selCtx, chromedp.WaitVisible(a.cfg.WaitForSelector, chromedp.ByQuery))
		selCancel()
	}

	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &renderedHTML, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return renderedHTML, nil
}
