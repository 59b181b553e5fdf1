package adapters

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/linkharvest/internal/fetcher"
)

/*
Crawl adapter

Breadth-first from Base, bounded by MaxDepth (inclusive) and a visited set so
no URL is fetched twice in one run. ScopeHost, IncludePaths and
ExcludePatterns are applied before both fetch and enqueue. RecrawlTTLSeconds,
when positive, skips a URL whose stored last_seen is still within the TTL —
it is not fetched and its links are not expanded that run. Such a URL is
still yielded when another fetched page links to it.
*/

type CrawlConfig struct {
	Base              string
	MaxDepth          int
	ScopeHost         string
	IncludePaths      []string
	ExcludePatterns   []string
	RecrawlTTLSeconds int64
	RateLimitRPS      float64
	UserAgent         string
	Headers           map[string]string
}

type crawlFrontierItem struct {
	url   string
	depth int
}

type CrawlAdapter struct {
	siteID          string
	cfg             CrawlConfig
	ctx             Context
	excludeRegexps  []*regexp.Regexp
	excludeCompiled bool
}

func NewCrawlAdapter(siteID string, cfg CrawlConfig, adapterCtx Context) *CrawlAdapter {
	return &CrawlAdapter{siteID: siteID, cfg: cfg, ctx: adapterCtx}
}

func (a *CrawlAdapter) Discover(ctx context.Context) <-chan Discovered {
	out := make(chan Discovered)
	go func() {
		defer close(out)
		a.run(ctx, out)
	}()
	return out
}

func (a *CrawlAdapter) compileExcludes() {
	if a.excludeCompiled {
		return
	}
	a.excludeCompiled = true
	for _, pattern := range a.cfg.ExcludePatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			a.excludeRegexps = append(a.excludeRegexps, re)
		}
	}
}

// inScope implements spec §4.7.4's scope predicate: host match (if
// configured), at least one include-path prefix match (if any configured),
// and no exclude-pattern match against the path.
func (a *CrawlAdapter) inScope(u *url.URL) bool {
	if a.cfg.ScopeHost != "" && u.Host != a.cfg.ScopeHost {
		return false
	}
	if len(a.cfg.IncludePaths) > 0 {
		matched := false
		for _, prefix := range a.cfg.IncludePaths {
			if strings.HasPrefix(u.Path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	a.compileExcludes()
	for _, re := range a.excludeRegexps {
		if re.MatchString(u.Path) {
			return false
		}
	}
	return true
}

func (a *CrawlAdapter) withinRecrawlTTL(rawURL string) bool {
	if a.cfg.RecrawlTTLSeconds <= 0 || a.ctx.Store == nil {
		return false
	}
	lastSeen, found, err := a.ctx.Store.GetLastSeen(rawURL)
	if err != nil || !found {
		return false
	}
	return time.Now().Unix()-lastSeen < a.cfg.RecrawlTTLSeconds
}

func (a *CrawlAdapter) run(ctx context.Context, out chan<- Discovered) {
	base, parseErr := url.Parse(a.cfg.Base)
	if parseErr != nil {
		a.ctx.Counters.IncErrors()
		return
	}
	if !a.inScope(base) {
		return
	}

	maxDepth := a.cfg.MaxDepth
	rps := a.cfg.RateLimitRPS
	if rps <= 0 {
		rps = 0.5
	}

	visited := make(map[string]bool)
	frontier := []crawlFrontierItem{{url: base.String(), depth: 0}}
	visited[base.String()] = true

	extraHeaders := mergeHeaders(a.cfg.UserAgent, a.cfg.Headers)

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		if a.withinRecrawlTTL(item.url) {
			continue
		}

		target, parseErr := url.Parse(item.url)
		if parseErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}

		if !checkRobots(a.ctx.Robot, a.ctx.MetadataSink, "CrawlAdapter.Discover", *target, a.ctx.Counters) {
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

		result, fetchErr := a.ctx.Fetcher.FetchConditional(ctx, item.depth, *target, condition, defaultRetryParam)
		if fetchErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}
		a.ctx.Counters.IncFetched()
		a.ctx.Counters.RecordStatus(result.Code())

		if result.Code() == http.StatusNotModified {
			continue
		}
		if result.Code() != http.StatusOK {
			a.ctx.Counters.IncErrors()
			continue
		}

		if a.ctx.Store != nil {
			headers := result.Headers()
			a.ctx.Store.SetResourceEtagLastmod(item.url, headerPtr(headers, "Etag"), headerPtr(headers, "Last-Modified"))
		}

		links, extractErr := extractLinks(*target, result.Body())
		if extractErr != nil {
			a.ctx.Counters.IncErrors()
			continue
		}
		a.ctx.Counters.IncParsed()

		for _, link := range links {
			linkURL, parseErr := url.Parse(link)
			if parseErr != nil || !a.inScope(linkURL) {
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

// extractLinks absolutizes every <a href> in body against base.
func extractLinks(base url.URL, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		resolved.Fragment = ""
		links = append(links, resolved.String())
	})
	return links, nil
}
