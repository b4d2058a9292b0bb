package credlock

import "context"

type clientIPContextKey struct{}
type requestPathContextKey struct{}
type requestMethodContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It appears in the
// details map of every audit event emitted for the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRequestPath attaches the request path to ctx for audit details.
func WithRequestPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, requestPathContextKey{}, path)
}

// WithRequestMethod attaches the request method to ctx for audit details.
func WithRequestMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, requestMethodContextKey{}, method)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func requestPathFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	path, _ := ctx.Value(requestPathContextKey{}).(string)
	return path
}

func requestMethodFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	method, _ := ctx.Value(requestMethodContextKey{}).(string)
	return method
}
