package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps non-streaming handlers with an http.TimeoutHandler.
// SSE endpoints (the analyze stream) must NOT use this middleware.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timeout"}`)
	}
}
