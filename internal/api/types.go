// Package api defines the JSON bodies exchanged between devipcd and its
// clients. Channel and message payloads travel as raw octet-stream bodies,
// not JSON.
package api

// ErrnoHeader is set on every error response so clients can tell an
// errno reply from a proxy or transport failure.
const ErrnoHeader = "X-Devipc-Errno"

// ClientHeader lets local clients sharing one Unix socket identify
// themselves for per-client rate limiting.
const ClientHeader = "X-Devipc-Client"

// RequestIDHeader carries the request ULID in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Errno string `json:"errno"`
	Code  int    `json:"code"`
}

// OpenRequest opens a device endpoint.
type OpenRequest struct {
	Mode     string `json:"mode" binding:"required"`
	Nonblock bool   `json:"nonblock"`
}

// HandleInfo describes an open handle.
type HandleInfo struct {
	ID       string `json:"id"`
	Minor    int    `json:"minor"`
	Mode     string `json:"mode"`
	Nonblock bool   `json:"nonblock"`
	OpenedAt string `json:"opened_at"`
}

// WriteResponse reports how many bytes a write accepted.
type WriteResponse struct {
	Written int `json:"written"`
}

// IoctlRequest applies a control command. Command is a name such as
// "set_buffer_size" or a decimal number.
type IoctlRequest struct {
	Command string `json:"command" binding:"required"`
	Arg     int    `json:"arg"`
}

// NonblockRequest changes a handle's default blocking mode.
type NonblockRequest struct {
	Nonblock bool `json:"nonblock"`
}
