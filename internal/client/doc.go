// Package client is the Go client for devipcd.
//
// Requests go through resty over a Unix-socket transport taken from
// go-retryablehttp's pooled client. Dial failures are retried so a client
// can start before the daemon; anything that reached the daemon is not
// replayed, since a replayed write or retrieve would not be idempotent.
// A token-bucket limiter and a circuit breaker sit in front of every call.
//
// Errno replies come back as *RemoteError values that unwrap to the errno
// sentinels:
//
//	c := client.New(client.DefaultOptions("/tmp/devipc.sock"))
//	h, err := c.Open(ctx, 0, device.ModeWrite, false)
//	if errors.Is(err, errno.ErrBusy) {
//		// another writer holds the channel
//	}
package client
