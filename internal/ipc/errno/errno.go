// Package errno defines the error taxonomy shared by the IPC primitives.
//
// Every failure an operation can report is one of the sentinel values below.
// Each sentinel carries the Linux errno a device driver would return for the
// same condition, so the dispatch layer can put a stable number on the wire
// and clients can turn it back into the same sentinel.
//
// Example Usage:
//
//	n, err := ring.Read(ctx, buf, len(buf), false)
//	if errors.Is(err, errno.ErrInterrupted) {
//	    // caller owns the retry
//	}
package errno

import (
	"errors"
	"fmt"
)

// Errno is an IPC error with a kernel-style error number.
type Errno struct {
	code int
	name string
	msg  string
}

// Error returns the human readable message.
func (e *Errno) Error() string {
	return e.msg
}

// Code returns the positive errno value.
func (e *Errno) Code() int {
	return e.code
}

// Name returns the symbolic errno name (EINVAL, EBUSY, ...).
func (e *Errno) Name() string {
	return e.name
}

// Linux errno values. ERESTARTSYS is kernel-internal and never reaches user
// space on a real system; it is surfaced here because callers own the restart.
const (
	ENOENT      = 2
	EIO         = 5
	EBADF       = 9
	EAGAIN      = 11
	ENOMEM      = 12
	EFAULT      = 14
	EBUSY       = 16
	ENODEV      = 19
	EINVAL      = 22
	ENOTTY      = 25
	EMSGSIZE    = 90
	ESHUTDOWN   = 108
	ERESTARTSYS = 512
)

var (
	ErrInvalidArgument = &Errno{EINVAL, "EINVAL", "invalid argument"}
	ErrFault           = &Errno{EFAULT, "EFAULT", "bad address"}
	ErrNoMemory        = &Errno{ENOMEM, "ENOMEM", "out of memory"}
	ErrBusy            = &Errno{EBUSY, "EBUSY", "device or resource busy"}
	ErrWouldBlock      = &Errno{EAGAIN, "EAGAIN", "operation would block"}
	ErrInterrupted     = &Errno{ERESTARTSYS, "ERESTARTSYS", "interrupted wait, restart the call"}
	ErrEmpty           = &Errno{ENOENT, "ENOENT", "no message available"}
	ErrTooLarge        = &Errno{EMSGSIZE, "EMSGSIZE", "message too large for destination buffer"}
	ErrUnsupported     = &Errno{ENOTTY, "ENOTTY", "unsupported control command"}
	ErrShutdown        = &Errno{ESHUTDOWN, "ESHUTDOWN", "endpoint shut down"}
	ErrBadHandle       = &Errno{EBADF, "EBADF", "bad handle"}
	ErrNoDevice        = &Errno{ENODEV, "ENODEV", "no such device"}
)

var byCode = map[int]*Errno{}

func init() {
	for _, e := range []*Errno{
		ErrInvalidArgument, ErrFault, ErrNoMemory, ErrBusy, ErrWouldBlock,
		ErrInterrupted, ErrEmpty, ErrTooLarge, ErrUnsupported, ErrShutdown,
		ErrBadHandle, ErrNoDevice,
	} {
		byCode[e.code] = e
	}
}

// Code extracts the errno from err. It returns 0 for nil and -1 for errors
// outside the taxonomy.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e *Errno
	if errors.As(err, &e) {
		return e.code
	}
	return -1
}

// Name returns the symbolic name of err, or "EUNKNOWN".
func Name(err error) string {
	var e *Errno
	if errors.As(err, &e) {
		return e.name
	}
	return "EUNKNOWN"
}

// FromCode maps an errno back to its sentinel. Unknown codes produce a fresh
// error that still reports the number.
func FromCode(code int) error {
	if code == 0 {
		return nil
	}
	if e, ok := byCode[code]; ok {
		return e
	}
	return &Errno{code: code, name: "EUNKNOWN", msg: fmt.Sprintf("errno %d", code)}
}

// Retval folds a (count, error) pair into a syscall-style return value:
// the count on success, the negated errno on failure.
func Retval(n int, err error) int {
	if err == nil {
		return n
	}
	if code := Code(err); code > 0 {
		return -code
	}
	return -EIO
}
