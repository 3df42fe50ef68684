package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// Timeout returns middleware that enforces a deadline on everything
// downstream. Downstream units see a context.Context with the deadline; if
// they have not settled when it passes, the dispatch fails with
// context.DeadlineExceeded.
func Timeout[T Carrier, U any](d time.Duration) compose.Middleware[T, U] {
	return func(c T, next compose.Next[U]) compose.Result[U] {
		ctx, cancel := context.WithTimeout(c.Context(), d)
		c.SetContext(ctx)

		// next may run downstream to completion on the calling goroutine.
		started := make(chan *compose.Future[U], 1)
		go func() { started <- next() }()

		out := compose.NewFuture[U]()
		go func() {
			defer cancel()
			var downstream *compose.Future[U]
			select {
			case downstream = <-started:
			case <-ctx.Done():
				out.Reject(ctx.Err())
				return
			}
			select {
			case <-downstream.Done():
				out.Settle(downstream.Wait())
			case <-ctx.Done():
				out.Reject(ctx.Err())
			}
		}()
		return compose.Async(out)
	}
}
