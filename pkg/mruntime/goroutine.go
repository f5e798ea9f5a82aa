package mruntime

import "context"

// SafeGo launches fn on a new goroutine, recovering any panic per policy.
func SafeGo(logger Logger, component string, policy PanicPolicy, fn func()) {
	go func() {
		defer RecoverWithPolicy(logger, component, policy)
		fn()
	}()
}

// SafeGoWithContext launches fn on a new goroutine with ctx, recovering
// any panic per policy.
func SafeGoWithContext(ctx context.Context, logger Logger, component string, policy PanicPolicy, fn func(context.Context)) {
	go func() {
		defer RecoverWithPolicy(logger, component, policy)
		fn(ctx)
	}()
}

// SafeGoWithContextAndComponent is SafeGoWithContext with an additional
// domain label folded into the panic log's component name, the way a
// dispatcher or consumer worker identifies both its owning service domain
// and its specific worker role.
func SafeGoWithContextAndComponent(ctx context.Context, logger Logger, domain, component string, policy PanicPolicy, fn func(context.Context)) {
	SafeGoWithContext(ctx, logger, domain+"."+component, policy, fn)
}
