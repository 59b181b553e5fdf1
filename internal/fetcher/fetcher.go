package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rohmanhakim/linkharvest/pkg/failure"
	"github.com/rohmanhakim/linkharvest/pkg/retry"
)

type Fetcher interface {
	Init(httpClient *http.Client, userAgent string)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchUrl url.URL,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
	FetchConditional(
		ctx context.Context,
		crawlDepth int,
		fetchUrl url.URL,
		condition ConditionalGet,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
