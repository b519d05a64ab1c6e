package logging

import "context"

type debugCaptureKey struct{}

// EnableDebugMode marks ctx so that CDebugw calls made with it log regardless of level. The
// capture loop uses it to trace a single capture end to end.
func EnableDebugMode(ctx context.Context) context.Context {
	return context.WithValue(ctx, debugCaptureKey{}, true)
}

// IsDebugMode returns whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	enabled, _ := ctx.Value(debugCaptureKey{}).(bool)
	return enabled
}
