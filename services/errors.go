package services

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy crossing the service boundary. Raw provider or storage
// errors are wrapped into one of these before leaving the pipeline or the
// orchestrator.
var (
	// ErrSyncInProgress rejects a single-document index while a
	// full-corpus sync holds the exclusivity flag. Retryable.
	ErrSyncInProgress = errors.New("synchronization in progress")

	// ErrProviderTimeout marks an embedding/generation/connector call that
	// exceeded its deadline. Recoverable per query.
	ErrProviderTimeout = errors.New("provider deadline exceeded")

	// ErrExtractionFailed marks unreadable document content. Indexing
	// degrades to a metadata-only placeholder rather than aborting.
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrCommitFailed marks a failed index upsert mid-pipeline.
	ErrCommitFailed = errors.New("index commit failed")

	// ErrIntegrityViolation marks an answer rejected by verification.
	ErrIntegrityViolation = errors.New("integrity verification rejected answer")
)

// wrapProviderErr converts context deadline errors into the timeout
// taxonomy and passes everything else through wrapped.
func wrapProviderErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrProviderTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
