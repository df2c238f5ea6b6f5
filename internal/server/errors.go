package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// StatusClientClosed is reported when the caller went away mid-wait.
const StatusClientClosed = 499

// statusFor maps an errno onto the closest HTTP status. None of the errno
// replies use 429 or a retryable 5xx except ESHUTDOWN.
func statusFor(err error) int {
	switch errno.Code(err) {
	case errno.EINVAL, errno.EFAULT, errno.EBADF, errno.ENOTTY:
		return http.StatusBadRequest
	case errno.ENOENT, errno.ENODEV:
		return http.StatusNotFound
	case errno.EBUSY, errno.EAGAIN:
		return http.StatusConflict
	case errno.EMSGSIZE:
		return http.StatusRequestEntityTooLarge
	case errno.ENOMEM:
		return http.StatusInsufficientStorage
	case errno.ESHUTDOWN:
		return http.StatusServiceUnavailable
	case errno.ERESTARTSYS:
		return StatusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

// abortWithErrno writes the JSON error body and stops the handler chain.
func abortWithErrno(c *gin.Context, err error) {
	code := errno.Code(err)
	if code < 0 {
		code = errno.EIO
	}
	name := errno.Name(err)
	if name == "EUNKNOWN" {
		name = "EIO"
	}

	_ = c.Error(err)
	c.Header(api.ErrnoHeader, strconv.Itoa(code))
	c.AbortWithStatusJSON(statusFor(err), api.ErrorResponse{
		Error: err.Error(),
		Errno: name,
		Code:  code,
	})
}

// invalid wraps a request parsing failure as EINVAL.
func invalid(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", what, errno.ErrInvalidArgument)
	}
	return fmt.Errorf("%s: %v: %w", what, err, errno.ErrInvalidArgument)
}
