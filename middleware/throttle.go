package middleware

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/compose-go"
)

// Throttle returns middleware that delays calls to stay within limit calls
// per second instead of rejecting them. The wait happens off the calling
// goroutine; if the call's context is cancelled first, the dispatch fails
// with the context error and downstream never runs.
func Throttle[T Carrier, U any](limit float64, burst int) compose.Middleware[T, U] {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)

	return func(c T, next compose.Next[U]) compose.Result[U] {
		r := limiter.Reserve()
		if !r.OK() {
			return compose.Fail[U](ErrRateLimited)
		}
		delay := r.Delay()
		if delay == 0 {
			return compose.Async(next())
		}

		ctx := c.Context()
		out := compose.NewFuture[U]()
		go func() {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
				out.Settle(next().Wait())
			case <-ctx.Done():
				r.Cancel()
				out.Reject(ctx.Err())
			}
		}()
		return compose.Async(out)
	}
}
