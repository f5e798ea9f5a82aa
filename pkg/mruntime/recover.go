package mruntime

import (
	"context"
	"runtime/debug"
)

func logPanic(logger Logger, component string, r any) {
	if fl, ok := logger.(FieldLogger); ok {
		logger = fl.WithFields("panic_value", r, "stack_trace", string(debug.Stack()))
	}

	logger.Errorf("panic recovered in %s: %v", component, r)

	if reporter := getErrorReporter(); reporter != nil {
		reporter.CaptureException(context.Background(), panicError{value: r}, map[string]string{
			"component": component,
		})
	}

	recordPanicMetric(component)
}

// RecoverAndLog recovers a panic on the calling goroutine, logs it against
// component, and swallows it. Intended to be deferred directly:
// defer RecoverAndLog(logger, "component").
func RecoverAndLog(logger Logger, component string) {
	if r := recover(); r != nil {
		logPanic(logger, component, r)
	}
}

// RecoverAndLogWithContext is RecoverAndLog with domain and component
// folded into a single label, for handlers that want the owning service
// domain in the log line without threading it through every call site.
func RecoverAndLogWithContext(ctx context.Context, logger Logger, domain, component string) {
	if r := recover(); r != nil {
		logPanic(logger, domain+"."+component, r)
	}
}

// RecoverAndCrash recovers a panic, logs it, then re-panics so the process
// terminates through the normal Go panic/crash path.
func RecoverAndCrash(logger Logger, component string) {
	if r := recover(); r != nil {
		logPanic(logger, component, r)
		panic(r)
	}
}

// RecoverWithPolicy recovers a panic, always logs it, and re-panics only
// when policy is CrashProcess.
func RecoverWithPolicy(logger Logger, component string, policy PanicPolicy) {
	if r := recover(); r != nil {
		logPanic(logger, component, r)

		if policy == CrashProcess {
			panic(r)
		}
	}
}

// panicError adapts an arbitrary recovered value into an error for
// reporters that require one.
type panicError struct{ value any }

func (p panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}

	return "panic: " + toString(p.value)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return "non-string panic value"
}
