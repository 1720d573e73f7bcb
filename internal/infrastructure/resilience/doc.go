/*
Package resilience coordinates access to the mailbox and guards remote calls.

# Coordinator

A Coordinator holds a single in-process token. Every envelope operation runs
under it, so two goroutines of one process never interleave a
read-modify-write of the segment. Failed attempts are retried a fixed number
of times with a fixed delay; errors wrapped with Permanent stop the loop.

	coord := resilience.NewCoordinator(resilience.DefaultRetrySettings(), logger)
	err := coord.Do(ctx, "write_typed", func(ctx context.Context) error {
		return mailbox.Write(payload)
	})
	if errors.Is(err, resilience.ErrRetriesExhausted) {
		// every attempt failed
	}

The token does not exclude other processes mapping the same segment.

# Breaker

A Breaker wraps calls to the HTTP bridge from clients:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
