package dispatcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/local/hlextract/internal/orchestrator"
	"github.com/local/hlextract/internal/queue"
)

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// Bad input never gets better
	if errors.Is(err, orchestrator.ErrInputNotFound) ||
		errors.Is(err, orchestrator.ErrNotAPDF) ||
		errors.Is(err, orchestrator.ErrOutputFolderMissing) ||
		errors.Is(err, queue.ErrMalformed) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unsupported output format") ||
		strings.Contains(errStr, "would overwrite the input") ||
		strings.Contains(errStr, "is encrypted and no password")
}

// isTransientError checks if error is transient and the job should be retried
func isTransientError(err error) bool {
	if err == nil || isFatalError(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network, storage and LibreOffice hiccups
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "http 5") ||
		strings.Contains(errStr, "failed to download from s3") ||
		strings.Contains(errStr, "failed to upload to s3") ||
		strings.Contains(errStr, "slowdown")
}

// retryBackoff doubles base per attempt up to max: 30s, 60s, 120s, ...
func retryBackoff(attempt int, base, max time.Duration) time.Duration {
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			return max
		}
	}
	return backoff
}
