// Package device exposes the bounded channels as a small table of device
// endpoints, each addressed by a minor number.
//
// Callers open an endpoint in read or write mode and get a Handle. Write
// mode is exclusive across the whole table: a second writer open fails
// with errno.ErrBusy until the first handle is closed. Read mode is shared,
// optionally up to a reader limit set with CmdSetMaxReaders.
//
// Example Usage:
//
//	table, err := device.NewTable(device.Options{Count: 2, BufferSize: 1024})
//	w, err := table.Open(0, device.ModeWrite, false)
//	n, err := w.Write(ctx, []byte("hello"))
//	r, err := table.Open(0, device.ModeRead, false)
//	n, err = r.Read(ctx, buf)
package device
