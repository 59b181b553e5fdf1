package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/robots/cache"
)

/*
Responsibilities
- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue
Robots checks occur before a URL enters the frontier.
*/

// Robot enforces robots.txt policy for a single crawl run. CachedRobot is
// the only implementation; schedulers depend on this interface so tests can
// substitute a mock.
type Robot interface {
	Init(userAgent string)
	Decide(u url.URL) (Decision, *RobotsError)
}

// NewRobot builds the default Robot, backed by an in-memory per-host cache.
// Callers must call Init before the first Decide.
func NewRobot(sink metadata.MetadataSink) Robot {
	r := NewCachedRobot(sink)
	return &r
}

// CachedRobot enforces robots.txt policy for a single crawl run, keyed by
// the user agent it was initialized with. Rule sets are cached per-host by
// the underlying RobotsFetcher for the lifetime of the crawl.
type CachedRobot struct {
	sink      metadata.MetadataSink
	userAgent string
	fetcher   *RobotsFetcher
}

// NewCachedRobot builds a robot bound to sink. Call Init or InitWithCache
// before Decide.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{sink: sink}
}

// Init prepares the robot with an in-memory cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache prepares the robot with a caller-supplied cache, letting
// callers share a cache across robots or inject a test double.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.sink, userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for u's host and reports
// whether u may be crawled. A fetch failure is returned as an error and
// Decide makes no decision for it; callers such as the adapters' robots
// check and the resolver treat that error as allow-all.
func (r *CachedRobot) Decide(u url.URL) (Decision, *RobotsError) {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	result, err := r.fetcher.Fetch(context.Background(), scheme, u.Host)
	if err != nil {
		return Decision{}, err
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)

	path := u.Path
	if path == "" {
		path = "/"
	}

	allowed, reason := rs.decide(path)

	var crawlDelay time.Duration
	if d := rs.CrawlDelay(); d != nil {
		crawlDelay = *d
	}

	return Decision{
		Url:        u,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: crawlDelay,
	}, nil
}

// decide applies longest-match-wins precedence over the rule set's allow
// and disallow rules, with ties resolved in favor of allow (matching the
// de facto Google robots.txt semantics most sites are authored against).
func (r ruleSet) decide(path string) (bool, DecisionReason) {
	if !r.hasGroups {
		return true, EmptyRuleSet
	}
	if !r.matchedGroup {
		return true, UserAgentNotMatched
	}

	bestLen := -1
	bestAllow := false
	found := false

	for _, rule := range r.allowRules {
		if !matchesPattern(path, rule.prefix) {
			continue
		}
		l := len(rule.prefix)
		if l >= bestLen {
			bestLen = l
			bestAllow = true
			found = true
		}
	}

	for _, rule := range r.disallowRules {
		if !matchesPattern(path, rule.prefix) {
			continue
		}
		l := len(rule.prefix)
		if l > bestLen {
			bestLen = l
			bestAllow = false
			found = true
		}
	}

	if !found {
		return true, NoMatchingRules
	}
	if bestAllow {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// matchesPattern reports whether path satisfies a robots.txt Allow/Disallow
// pattern. "*" matches any run of characters; a trailing "$" anchors the
// match to the end of path. Everything else is matched as a literal prefix.
func matchesPattern(path, pattern string) bool {
	endAnchored := strings.HasSuffix(pattern, "$")
	if endAnchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	segments := strings.Split(pattern, "*")
	var sb strings.Builder
	sb.WriteString("^")
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString(".*")
		}
		sb.WriteString(regexp.QuoteMeta(seg))
	}
	if endAnchored {
		sb.WriteString("$")
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}
