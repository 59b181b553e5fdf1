package runner

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rohmanhakim/linkharvest/internal/adapters"
	"github.com/rohmanhakim/linkharvest/internal/config"
	"github.com/rohmanhakim/linkharvest/internal/fetcher"
	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/normalize"
	"github.com/rohmanhakim/linkharvest/internal/report"
	"github.com/rohmanhakim/linkharvest/internal/resolver"
	"github.com/rohmanhakim/linkharvest/internal/robots"
	"github.com/rohmanhakim/linkharvest/internal/siteconfig"
	"github.com/rohmanhakim/linkharvest/internal/store"
	"github.com/rohmanhakim/linkharvest/pkg/limiter"
	"github.com/rohmanhakim/linkharvest/pkg/timeutil"
)

/*
Runner drives one full run across every configured site: it loads the sites
file, registers each site's sources row, fans a bounded pool of per-site
workers out over the adapters, and folds every discovered URL through
normalize -> skip-or-resolve -> upsert-and-touch before emitting the run's
output artifacts.

Grounded on internal/scheduler.Scheduler's ExecuteCrawling pipeline loop
(fetch/extract/convert/normalize/write, fatal-vs-recoverable per step) and
original_source/src/runner.py's run_once/_process_site, whose
ThreadPoolExecutor(max_workers=concurrency) becomes a semaphore-gated
goroutine pool here.
*/

// Runner holds the substrate shared by every site worker: one HTTP client,
// fetcher, robots policy and rate limiter for the whole run. Each worker
// still opens its own store connection (sqlite WAL makes that safe).
type Runner struct {
	cfg          config.Config
	metadataSink metadata.MetadataSink
	httpFetcher  *fetcher.HtmlFetcher
	robot        robots.Robot
	rateLimiter  *limiter.ConcurrentRateLimiter
	resolver     *resolver.HTTPResolver
}

func NewRunner(cfg config.Config, metadataSink metadata.MetadataSink) *Runner {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}

	httpClient := &http.Client{Timeout: cfg.Timeout()}

	htmlFetcher := fetcher.NewHtmlFetcher(metadataSink)
	htmlFetcher.Init(httpClient, cfg.UserAgent())

	robot := robots.NewRobot(metadataSink)
	robot.Init(cfg.UserAgent())

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())
	rateLimiter.SetBackoffParam(timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()))

	httpResolver := resolver.NewHTTPResolver(robot, rateLimiter, metadataSink)
	httpResolver.Init(cfg.UserAgent(), nil)

	return &Runner{
		cfg:          cfg,
		metadataSink: metadataSink,
		httpFetcher:  &htmlFetcher,
		robot:        robot,
		rateLimiter:  rateLimiter,
		resolver:     httpResolver,
	}
}

// Run executes one complete pass over every configured site and returns the
// run's summary once every site worker has joined and artifacts are written.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	sites, loadErr := siteconfig.Load(r.cfg.SitesPath())
	if loadErr != nil {
		return RunResult{}, loadErr
	}

	runStart := time.Now()

	leadStore, openErr := store.Open(r.cfg.DBPath(), r.metadataSink)
	if openErr != nil {
		return RunResult{}, openErr
	}
	for _, site := range sites {
		cfgJSON, jsonErr := site.CfgJSON()
		if jsonErr != nil {
			leadStore.Close()
			return RunResult{}, jsonErr
		}
		if upsertErr := leadStore.UpsertSource(site.ID, string(site.Kind), site.BasePtr(), cfgJSON); upsertErr != nil {
			leadStore.Close()
			return RunResult{}, upsertErr
		}
	}
	leadStore.Close()

	runID := runStart.UTC().Format("20060102T150405Z")
	runDir := filepath.Join(r.cfg.OutDir(), runID)
	if mkErr := os.MkdirAll(runDir, 0o755); mkErr != nil {
		return RunResult{}, mkErr
	}
	runLog, logErr := report.OpenRunLog(runDir)
	if logErr != nil {
		return RunResult{}, logErr
	}
	defer runLog.Close()

	results := make([]SiteResult, len(sites))
	sem := make(chan struct{}, maxConcurrency(r.cfg.Concurrency()))
	var wg sync.WaitGroup

	for i, site := range sites {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, site siteconfig.SiteConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			runLog.Start(site.ID, string(site.Kind))
			result := r.runSite(ctx, site)
			runLog.Metrics(site.ID, result.counters)
			results[i] = result.SiteResult
		}(i, site)
	}
	wg.Wait()

	runResult, artifactErr := r.writeArtifacts(runID, runDir, runStart, sites, results)
	if artifactErr != nil {
		return RunResult{}, artifactErr
	}
	return runResult, nil
}

func maxConcurrency(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// siteRunOutcome carries the snapshot alongside SiteResult so Run can log
// metrics after the worker returns, without re-locking its counters.
type siteRunOutcome struct {
	SiteResult
	counters adapters.CountersSnapshot
}

func (r *Runner) runSite(ctx context.Context, site siteconfig.SiteConfig) siteRunOutcome {
	result := SiteResult{SiteID: site.ID, Kind: string(site.Kind)}

	siteStore, openErr := store.Open(r.cfg.DBPath(), r.metadataSink)
	if openErr != nil {
		result.Errors++
		return siteRunOutcome{SiteResult: result}
	}
	defer siteStore.Close()

	counters := adapters.NewCounters()
	adapterCtx := adapters.Context{
		Fetcher:      r.httpFetcher,
		Robot:        r.robot,
		RateLimiter:  r.rateLimiter,
		Store:        siteStore,
		Counters:     counters,
		MetadataSink: r.metadataSink,
	}

	adapter := buildAdapter(site, adapterCtx)
	if adapter == nil {
		result.Errors++
		snapshot := counters.Snapshot()
		return siteRunOutcome{SiteResult: result, counters: snapshot}
	}

	for discovered := range adapter.Discover(ctx) {
		result.Discovered++
		r.processDiscovered(ctx, site, siteStore, counters, discovered, &result)
	}

	snapshot := counters.Snapshot()
	result.Fetched = snapshot.Fetched
	result.Errors += snapshot.Errors
	result.Inserted = snapshot.Inserted
	return siteRunOutcome{SiteResult: result, counters: snapshot}
}

// processDiscovered implements spec §4.8's per-record pipeline: normalize,
// skip canonical resolution for an already-known URL, resolve the candidate
// the pair is stored and diffed under, then upsert and touch in
// RecordDiscovery's single transaction.
func (r *Runner) processDiscovered(
	ctx context.Context,
	site siteconfig.SiteConfig,
	siteStore store.Store,
	counters *adapters.Counters,
	discovered adapters.Discovered,
	result *SiteResult,
) {
	normalized, normErr := normalize.URL(discovered.URL)
	if normErr != nil {
		result.Errors++
		return
	}

	canonical := discovered.Canonical
	resolved := normalized
	if canonical == nil {
		if _, known, _ := siteStore.GetLastSeen(normalized); !known {
			resolved, canonical = r.resolver.ResolveOnce(ctx, normalized, site.EffectiveRateLimitRPS())
		}
	}

	candidate := normalized
	switch {
	case canonical != nil:
		candidate = *canonical
	case resolved != normalized:
		candidate = resolved
	}

	finalURL, finalErr := normalize.URL(candidate)
	if finalErr != nil {
		result.Errors++
		return
	}

	source := string(discovered.Source)
	isNewPair, recordErr := siteStore.RecordDiscovery(site.ID, finalURL, canonical, &source, nil, discovered.Lastmod)
	if recordErr != nil {
		result.Errors++
		return
	}

	result.TotalSeen++
	if isNewPair {
		result.NewCount++
		counters.IncInserted()
	}
}

// buildAdapter dispatches a site's configured Kind to its adapter
// constructor. Crawl sites with JSRender set get the headless variant;
// everything else is the closed, tagged set spec §4.7 names.
func buildAdapter(site siteconfig.SiteConfig, adapterCtx adapters.Context) adapters.Adapter {
	switch site.Kind {
	case siteconfig.KindWordPress:
		return adapters.NewWordPressAdapter(site.ID, adapters.WordPressConfig{
			Base:         site.Base,
			MaxPages:     site.MaxPages,
			RateLimitRPS: site.EffectiveRateLimitRPS(),
			UserAgent:    site.UserAgent,
			Headers:      site.Headers,
		}, adapterCtx)
	case siteconfig.KindRSS:
		return adapters.NewRSSAdapter(site.ID, adapters.RSSConfig{
			Feed:         site.Feed,
			RateLimitRPS: site.EffectiveRateLimitRPS(),
			UserAgent:    site.UserAgent,
			Headers:      site.Headers,
		}, adapterCtx)
	case siteconfig.KindSitemap:
		return adapters.NewSitemapAdapter(site.ID, adapters.SitemapConfig{
			Sitemap:      site.Sitemap,
			RateLimitRPS: site.EffectiveRateLimitRPS(),
			UserAgent:    site.UserAgent,
			Headers:      site.Headers,
		}, adapterCtx)
	case siteconfig.KindCrawl:
		crawlCfg := adapters.CrawlConfig{
			Base:              site.Base,
			MaxDepth:          site.MaxDepth,
			ScopeHost:         site.ScopeHost,
			IncludePaths:      site.IncludePaths,
			ExcludePatterns:   site.ExcludePatterns,
			RecrawlTTLSeconds: site.RecrawlTTLSeconds,
			RateLimitRPS:      site.EffectiveRateLimitRPS(),
			UserAgent:         site.UserAgent,
			Headers:           site.Headers,
		}
		if site.JSRender {
			return adapters.NewJSCrawlAdapter(site.ID, adapters.JSCrawlConfig{
				CrawlConfig:      crawlCfg,
				MaxRenderedPages: site.MaxRenderedPages,
				WaitForSelector:  site.WaitSelector,
			}, adapterCtx)
		}
		return adapters.NewCrawlAdapter(site.ID, crawlCfg, adapterCtx)
	default:
		return nil
	}
}

// writeArtifacts computes the run window, queries the store for the diff
// reports, and writes every output file spec §6 names into runDir, the
// run's own <out>/<runID>/ subdirectory.
func (r *Runner) writeArtifacts(runID, runDir string, runStart time.Time, sites []siteconfig.SiteConfig, results []SiteResult) (RunResult, error) {
	runEnd := time.Now()

	queryStore, openErr := store.Open(r.cfg.DBPath(), r.metadataSink)
	if openErr != nil {
		return RunResult{}, openErr
	}
	defer queryStore.Close()

	startTs := runStart.Unix()
	var latestSinceTs int64
	hasSince := r.cfg.Since() > 0
	if hasSince {
		startTs = runEnd.Add(-r.cfg.Since()).Unix()
		latestSinceTs = startTs
	}
	endTs := runEnd.Unix()

	newRecords, queryErr := queryStore.QueryNewURLs(startTs, endTs)
	if queryErr != nil {
		return RunResult{}, queryErr
	}

	counts := make([]report.SiteCount, 0, len(sites))
	for _, site := range sites {
		siteCounts, countErr := queryStore.CountsForSite(site.ID)
		if countErr != nil {
			return RunResult{}, countErr
		}
		counts = append(counts, report.SiteCount{SiteID: site.ID, NewCount: siteCounts.NewCount, TotalSeen: siteCounts.TotalSeen})
	}

	if err := report.WriteNewNDJSON(filepath.Join(runDir, "new.ndjson"), newRecords); err != nil {
		return RunResult{}, err
	}
	if err := report.WriteNewCSV(filepath.Join(runDir, "new.csv"), newRecords); err != nil {
		return RunResult{}, err
	}
	if hasSince {
		latestRecords, latestErr := queryStore.QueryLatestAll(latestSinceTs)
		if latestErr != nil {
			return RunResult{}, latestErr
		}
		if err := report.WriteLatestAllCSV(filepath.Join(runDir, "latest_all.csv"), latestRecords); err != nil {
			return RunResult{}, err
		}
	}
	if err := report.WriteCountsCSV(filepath.Join(runDir, "per_site_counts.csv"), counts); err != nil {
		return RunResult{}, err
	}

	return RunResult{
		RunID:      runID,
		StartTs:    startTs,
		EndTs:      endTs,
		OutDir:     runDir,
		NewCount:   len(newRecords),
		SitesCount: len(sites),
		Sites:      results,
	}, nil
}
