package adapters

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rohmanhakim/linkharvest/internal/fetcher"
	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/robots"
	"github.com/rohmanhakim/linkharvest/internal/store"
	"github.com/rohmanhakim/linkharvest/pkg/limiter"
	"github.com/rohmanhakim/linkharvest/pkg/retry"
	"github.com/rohmanhakim/linkharvest/pkg/timeutil"
)

// Context bundles the substrate every adapter pulls from: the HTTP client,
// robots policy, per-host rate limiter, the site's store connection, and the
// counters the runner reads once discovery completes. The runner owns every
// member's lifetime and constructs one Context per site worker.
type Context struct {
	Fetcher      fetcher.Fetcher
	Robot        robots.Robot
	RateLimiter  limiter.RateLimiter
	Store        store.Store
	Counters     *Counters
	MetadataSink metadata.MetadataSink
}

// Adapter is the one operation every discovery strategy implements: a lazy,
// pull-based stream of Discovered records. Discover must close the returned
// channel when finished or when ctx is cancelled.
type Adapter interface {
	Discover(ctx context.Context) <-chan Discovered
}

// defaultRetryParam backs every adapter's fetch-with-retry calls; adapters
// don't take their own retry budget from site config, matching the original
// implementation's fixed client-level retry policy.
var defaultRetryParam = retry.NewRetryParam(
	200*time.Millisecond,
	100*time.Millisecond,
	1,
	3,
	timeutil.NewBackoffParam(200*time.Millisecond, 2.0, 5*time.Second),
)

// mergeHeaders layers userAgent onto headers as "User-Agent", letting a
// per-site override win over the fetcher's own default user agent (the
// fetcher's conditional-GET headers apply caller-supplied ExtraHeaders last).
func mergeHeaders(userAgent string, headers map[string]string) map[string]string {
	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	if userAgent != "" {
		merged["User-Agent"] = userAgent
	}
	return merged
}

// headerPtr looks up a response header by its canonical form and returns a
// pointer to it, or nil when absent or empty — the shape store.Store's
// nullable etag/lastmod columns expect.
func headerPtr(headers map[string]string, key string) *string {
	value, ok := headers[http.CanonicalHeaderKey(key)]
	if !ok || value == "" {
		return nil
	}
	return &value
}

// checkRobots applies the adapter common policy (spec §4.7): a confirmed
// disallow increments skippedRobots and reports false; a robots.txt fetch
// failure degrades to allow-all for that origin (spec §7) rather than
// blocking discovery, and is only recorded for observability.
func checkRobots(robot robots.Robot, sink metadata.MetadataSink, callerMethod string, target url.URL, counters *Counters) bool {
	if robot == nil {
		return true
	}
	decision, robotsErr := robot.Decide(target)
	if robotsErr != nil {
		if sink != nil {
			sink.RecordError(
				time.Now(),
				"adapters",
				callerMethod,
				metadata.CauseNetworkFailure,
				robotsErr.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
			)
		}
		return true
	}
	if !decision.Allowed {
		counters.IncSkippedRobots()
		return false
	}
	return true
}
