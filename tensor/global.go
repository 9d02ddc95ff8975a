package tensor

// defaultCtx backs the package-level convenience functions — a thin
// wrapper over one Context, matching spec.md §9's design note that the
// "global" variant of the API is just a default-context convenience
// layer rather than a separate code path.
var defaultCtx *Context

// Init builds the process-wide default context. Must be called before
// any of the package-level helpers below.
func Init(opts ...ContextOption) {
	defaultCtx = NewContext(opts...)
}

// Cleanup tears down the default context's registry.
func Cleanup() error {
	return defaultCtx.Teardown()
}

// Default returns the process-wide default context.
func Default() *Context { return defaultCtx }

func EnableGrad()         { defaultCtx.EnableGrad() }
func DisableGrad()        { defaultCtx.DisableGrad() }
func IsGradEnabled() bool { return defaultCtx.IsGradEnabled() }
