// Package server exposes an IPC kernel over HTTP on a Unix socket.
//
// Clients open device endpoints and receive a handle ID ("fh_<ulid>"); the
// daemon keeps the device handle until the client deletes it or the daemon
// shuts down. Channel reads and writes move raw octet-stream bodies and
// block inside the request. A blocked call returns when data arrives, the
// client disconnects (ERESTARTSYS), the handle is deleted (EBADF) or the
// daemon shuts down (ESHUTDOWN).
//
// Every failure is a JSON api.ErrorResponse carrying the errno name and
// number, with the number repeated in the X-Devipc-Errno header.
//
// Routes:
//
//	POST   /devices/:minor/open   {mode, nonblock} -> handle
//	POST   /handles/:id/read      ?n=&nonblock=    -> bytes
//	POST   /handles/:id/write     ?nonblock=       -> {written}
//	POST   /handles/:id/ioctl     {command, arg}
//	PUT    /handles/:id/nonblock  {nonblock}
//	DELETE /handles/:id
//	POST   /msgbox                ?length=
//	GET    /msgbox                ?size=           -> bytes
//	GET    /devices, /handles, /stats, /health, /metrics
package server
