/*
Package resilience provides a circuit breaker for calls to the devipc daemon.

The client wraps every HTTP round trip in a Breaker. Errno replies from the
daemon (EAGAIN, ENOENT, EBUSY and so on) are ordinary results and do not
count as failures; only transport errors and daemon shutdown do.

# Usage

	breaker := resilience.New("devipcd", resilience.Settings{
		Threshold: 5,
		Cooldown:  2 * time.Second,
		IsFailure: isTransportError,
	})

	n, err := resilience.Do(breaker, func() (int, error) {
		return c.read(ctx, id, buf)
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[Probes successes]-> Closed
	                                                       |
	                                                   [failure]
	                                                       v
	                                                      Open
*/
package resilience
