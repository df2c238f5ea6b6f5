package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/msgbox"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/logging"
)

const octetStream = "application/octet-stream"

func (s *Server) health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if s.shutdown.Load() {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"devices": s.kernel.Devices.Len(),
		"handles": s.handles.len(),
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kernel":  s.kernel.Stats(),
		"http":    s.metrics.Snapshot(),
		"handles": s.handles.len(),
	})
}

func (s *Server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.kernel.Devices.Stats())
}

func (s *Server) openDevice(c *gin.Context) {
	minor, err := strconv.Atoi(c.Param("minor"))
	if err != nil {
		abortWithErrno(c, invalid("minor", err))
		return
	}

	var req api.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithErrno(c, invalid("body", err))
		return
	}
	mode, err := device.ParseMode(req.Mode)
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	if s.shutdown.Load() {
		abortWithErrno(c, errno.ErrShutdown)
		return
	}

	start := time.Now()
	h, err := s.kernel.Open(minor, mode, req.Nonblock)
	s.metrics.RecordOp("open", 0, err, time.Since(start))
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	o, err := s.handles.add(h)
	if err != nil {
		_ = h.Close()
		abortWithErrno(c, err)
		return
	}
	s.metrics.SetHandlesOpen(s.handles.len())
	c.JSON(http.StatusCreated, o.info())
}

func (s *Server) listHandles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"handles": s.handles.list()})
}

// nonblockParam returns the per-call override, or the handle default.
func nonblockParam(c *gin.Context, def bool) (bool, error) {
	raw, ok := c.GetQuery("nonblock")
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid("nonblock", err)
	}
	return v, nil
}

// interrupted turns ERESTARTSYS from a handle close or shutdown into the
// errno that caused it.
func interrupted(ctx context.Context, err error) error {
	if !errors.Is(err, errno.ErrInterrupted) {
		return err
	}
	if cause := context.Cause(ctx); errno.Code(cause) > 0 {
		return cause
	}
	return err
}

func (s *Server) read(c *gin.Context) {
	o, err := s.handles.get(c.Param("id"))
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	n := device.DefaultBufferSize
	if raw := c.Query("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			abortWithErrno(c, invalid("n", err))
			return
		}
	}
	nonblock, err := nonblockParam(c, o.h.Nonblock())
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	// a read never returns more than one buffer's worth
	size := min(max(n, 0), device.MaxBufferSize)
	buf := make([]byte, size)

	ctx, done := o.opContext(c.Request.Context())
	defer done()

	start := time.Now()
	got, err := o.h.ReadWith(ctx, buf, min(n, size), nonblock)
	err = interrupted(ctx, err)
	s.metrics.RecordOp("read", got, err, time.Since(start))
	if err != nil {
		abortWithErrno(c, err)
		return
	}
	c.Data(http.StatusOK, octetStream, buf[:got])
}

func (s *Server) write(c *gin.Context) {
	o, err := s.handles.get(c.Param("id"))
	if err != nil {
		abortWithErrno(c, err)
		return
	}
	nonblock, err := nonblockParam(c, o.h.Nonblock())
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, device.MaxBufferSize))
	if err != nil {
		abortWithErrno(c, invalid("body", err))
		return
	}

	ctx, done := o.opContext(c.Request.Context())
	defer done()

	start := time.Now()
	n, err := o.h.WriteWith(ctx, body, len(body), nonblock)
	err = interrupted(ctx, err)
	s.metrics.RecordOp("write", n, err, time.Since(start))
	if err != nil {
		abortWithErrno(c, err)
		return
	}
	c.JSON(http.StatusOK, api.WriteResponse{Written: n})
}

func (s *Server) ioctl(c *gin.Context) {
	o, err := s.handles.get(c.Param("id"))
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	var req api.IoctlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithErrno(c, invalid("body", err))
		return
	}
	cmd, err := device.ParseCommand(req.Command)
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	start := time.Now()
	err = o.h.Ioctl(cmd, req.Arg)
	s.metrics.RecordOp("ioctl", 0, err, time.Since(start))
	if err != nil {
		s.log.Warn("ioctl rejected",
			zap.String("handle", o.id.String()),
			zap.Stringer("command", cmd),
			logging.Errno(err))
		abortWithErrno(c, err)
		return
	}
	c.JSON(http.StatusOK, o.info())
}

func (s *Server) setNonblock(c *gin.Context) {
	o, err := s.handles.get(c.Param("id"))
	if err != nil {
		abortWithErrno(c, err)
		return
	}

	var req api.NonblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithErrno(c, invalid("body", err))
		return
	}
	o.h.SetNonblock(req.Nonblock)
	c.JSON(http.StatusOK, o.info())
}

func (s *Server) closeHandle(c *gin.Context) {
	err := s.handles.remove(c.Param("id"), errno.ErrBadHandle)
	s.metrics.RecordOp("close", 0, err, 0)
	if err != nil {
		abortWithErrno(c, err)
		return
	}
	s.metrics.SetHandlesOpen(s.handles.len())
	c.Status(http.StatusNoContent)
}

func (s *Server) submit(c *gin.Context) {
	// one byte over the limit so oversize submits reach the box and fail there
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, msgbox.MaxMessageSize+1))
	if err != nil {
		abortWithErrno(c, invalid("body", err))
		return
	}

	length := len(body)
	if raw := c.Query("length"); raw != "" {
		if length, err = strconv.Atoi(raw); err != nil {
			abortWithErrno(c, invalid("length", err))
			return
		}
	}

	start := time.Now()
	err = s.kernel.Submit(body, length)
	s.metrics.RecordOp("submit", length, err, time.Since(start))
	if err != nil {
		abortWithErrno(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) retrieve(c *gin.Context) {
	raw, ok := c.GetQuery("size")
	if !ok {
		abortWithErrno(c, invalid("size", nil))
		return
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		abortWithErrno(c, invalid("size", err))
		return
	}

	// no message exceeds MaxMessageSize, so a larger buffer changes nothing
	capacity := min(size, msgbox.MaxMessageSize)
	buf := make([]byte, max(capacity, 0))

	start := time.Now()
	n, err := s.kernel.Retrieve(buf, capacity)
	s.metrics.RecordOp("retrieve", n, err, time.Since(start))
	if err != nil {
		if errors.Is(err, errno.ErrTooLarge) {
			s.log.Warn("oversized message discarded", zap.Int("capacity", size), logging.Errno(err))
		}
		abortWithErrno(c, err)
		return
	}
	c.Data(http.StatusOK, octetStream, buf[:n])
}
