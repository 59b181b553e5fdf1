package resolver

import (
	"github.com/rohmanhakim/linkharvest/pkg/failure"
)

// resolveError carries a transport-level failure encountered while trying to
// resolve a single URL. Every resolveError collapses to (url, nil) at the
// ResolveOnce boundary — it never reaches calling code as a propagated error,
// only through the metadata sink for observability.
type resolveError struct {
	message   string
	retryable bool
}

func (e *resolveError) Error() string {
	return e.message
}

func (e *resolveError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
