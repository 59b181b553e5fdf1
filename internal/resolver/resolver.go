package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/internal/robots"
	"github.com/rohmanhakim/linkharvest/pkg/failure"
	"github.com/rohmanhakim/linkharvest/pkg/limiter"
	"github.com/rohmanhakim/linkharvest/pkg/retry"
	"github.com/rohmanhakim/linkharvest/pkg/timeutil"
)

/*
Responsibilities
- One-shot redirect resolution for a discovered URL
- <link rel="canonical"> lookup on HTML responses
- Never fatal: every failure (robots, network, parse) collapses to (url, nil)

Resolution is best-effort and only ever runs once per URL per call; it does
not follow a redirect chain and does not retry beyond a single extra attempt
on a transport error.
*/

// defaultRetryParam grants exactly one retry (two attempts total) on a
// transport-level failure, matching the one-shot "max_retries=1" contract.
var defaultRetryParam = retry.NewRetryParam(
	200*time.Millisecond,
	100*time.Millisecond,
	1,
	2,
	timeutil.NewBackoffParam(200*time.Millisecond, 2.0, 2*time.Second),
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Resolver resolves a single discovered URL to its redirect target and, when
// the response is HTML, the canonical link tag it declares.
type Resolver interface {
	Init(userAgent string, extraHeaders map[string]string)
	ResolveOnce(ctx context.Context, rawURL string, rps float64) (resolvedURL string, canonicalTag *string)
}

// HTTPResolver is the default Resolver, backed by a client that stops at the
// first redirect hop instead of following it, a per-host rate limiter, and a
// robots policy check performed before any network access.
type HTTPResolver struct {
	robot        robots.Robot
	rateLimiter  limiter.RateLimiter
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	extraHeaders map[string]string
}

// NewHTTPResolver builds a resolver bound to robot, rateLimiter and sink.
// robot and rateLimiter may be nil to skip the respective check — useful for
// adapters that resolve canonical URLs against a source with no robots
// policy of its own (e.g. an already robots-cleared feed URL).
func NewHTTPResolver(robot robots.Robot, rateLimiter limiter.RateLimiter, metadataSink metadata.MetadataSink) *HTTPResolver {
	return &HTTPResolver{
		robot:        robot,
		rateLimiter:  rateLimiter,
		metadataSink: metadataSink,
		httpClient: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Init binds the user agent and any caller-supplied headers sent with every
// resolution request.
func (h *HTTPResolver) Init(userAgent string, extraHeaders map[string]string) {
	h.userAgent = userAgent
	h.extraHeaders = extraHeaders
}

// ResolveOnce performs the one-shot resolution described in the package
// doc comment. It never returns an error: any failure to confirm permission
// or to reach/parse the resource yields (rawURL, nil), the input unchanged.
func (h *HTTPResolver) ResolveOnce(ctx context.Context, rawURL string, rps float64) (string, *string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, nil
	}

	if h.robot != nil {
		decision, robotsErr := h.robot.Decide(*parsed)
		if robotsErr != nil {
			// Per the crawler's error-handling design, a robots.txt fetch
			// failure degrades to allow-all for that origin rather than
			// blocking discovery — only a confirmed disallow stops us.
			h.recordError("ResolveOnce", rawURL, robotsErr.Error())
		} else if !decision.Allowed {
			return rawURL, nil
		}
	}

	if h.rateLimiter != nil {
		h.rateLimiter.AwaitSlot(parsed.Host, rps)
	}

	resp, fetchErr := h.get(ctx, rawURL)
	if fetchErr != nil {
		h.recordError("ResolveOnce", rawURL, fetchErr.Error())
		return rawURL, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if location := resp.Header.Get("Location"); location != "" {
			return location, nil
		}
		return rawURL, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rawURL, nil
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "html") {
		return rawURL, nil
	}

	doc, parseErr := goquery.NewDocumentFromReader(resp.Body)
	if parseErr != nil {
		return rawURL, nil
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && href != "" {
		return rawURL, &href
	}

	return rawURL, nil
}

// get performs the single GET, retrying once on a transport-level failure.
// A response of any status code is treated as a terminal success from the
// retry harness's perspective — only a failure to obtain a response at all
// (DNS, connection refused, timeout) is retryable.
func (h *HTTPResolver) get(ctx context.Context, rawURL string) (*http.Response, failure.ClassifiedError) {
	task := func() (*http.Response, failure.ClassifiedError) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if reqErr != nil {
			return nil, &resolveError{message: fmt.Sprintf("failed to create request: %v", reqErr)}
		}

		req.Header.Set("Accept", acceptHeader)
		if h.userAgent != "" {
			req.Header.Set("User-Agent", h.userAgent)
		}
		for key, value := range h.extraHeaders {
			req.Header.Set(key, value)
		}

		resp, doErr := h.httpClient.Do(req)
		if doErr != nil {
			return nil, &resolveError{message: fmt.Sprintf("request failed: %v", doErr), retryable: true}
		}
		return resp, nil
	}

	result := retry.Retry(defaultRetryParam, task)
	if err := result.Err(); err != nil {
		return nil, err
	}
	return result.Value(), nil
}

func (h *HTTPResolver) recordError(callerMethod, rawURL, message string) {
	if h.metadataSink == nil {
		return
	}
	h.metadataSink.RecordError(
		time.Now(),
		"resolver",
		callerMethod,
		metadata.CauseNetworkFailure,
		message,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, rawURL),
		},
	)
}
