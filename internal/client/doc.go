/*
Package client calls the bridge HTTP API.

Requests go through resty on a retryablehttp transport. Connection errors and
gateway failures are retried there; the bridge's own 404 and 500 answers are
final. A circuit breaker stops calling a bridge that keeps failing, and an
optional token bucket bounds the request rate.

	c := client.New(client.Config{BaseURL: "http://localhost:8000"})
	res, err := c.Execute(ctx, "mailbox.read", nil)
	switch {
	case errors.Is(err, client.ErrToolNotFound):
	case errors.Is(err, resilience.ErrRetriesExhausted):
	case err != nil:
	case !res.Success:
		// domain failure, see res.Code
	}
*/
package client
