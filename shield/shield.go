// Package shield provides the HTTP middleware in front of the originality
// API: security headers, HEAD handling and per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(rl) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// Stack returns the middleware applied to every API route, outermost
// first. rl may be nil to disable rate limiting.
func Stack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}
