package mruntime

import (
	"context"
	"sync"
)

// ErrorReporter forwards recovered panics to an external error-tracking
// service (e.g. Sentry), in addition to the structured log line every
// recovery already emits.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, tags map[string]string)
}

var (
	errorReporterMu sync.RWMutex
	errorReporter   ErrorReporter
)

// SetErrorReporter configures the process-wide reporter used by every
// recovery helper in this package. A nil reporter disables reporting.
func SetErrorReporter(reporter ErrorReporter) {
	errorReporterMu.Lock()
	defer errorReporterMu.Unlock()

	errorReporter = reporter
}

func getErrorReporter() ErrorReporter {
	errorReporterMu.RLock()
	defer errorReporterMu.RUnlock()

	return errorReporter
}
