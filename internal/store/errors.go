package store

import (
	"fmt"

	"github.com/rohmanhakim/linkharvest/internal/metadata"
	"github.com/rohmanhakim/linkharvest/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseOpenFailed  StoreErrorCause = "open failed"
	ErrCauseSchemaSetup StoreErrorCause = "schema setup failed"
	ErrCauseQueryFailed StoreErrorCause = "query failed"
	ErrCauseTxFailed    StoreErrorCause = "transaction failed"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapStoreErrorToMetadataCause maps store-local error semantics to the
// canonical metadata.ErrorCause table. Observational only; MUST NOT be
// used to derive control-flow decisions.
func mapStoreErrorToMetadataCause(err *StoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailed, ErrCauseSchemaSetup, ErrCauseQueryFailed, ErrCauseTxFailed:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
