package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
)

const octetStream = "application/octet-stream"

// Handle is a device handle held by the daemon on the client's behalf. It
// is safe for concurrent use.
type Handle struct {
	c  *Client
	id string

	mu   sync.Mutex
	info api.HandleInfo // Protected by mu
}

// ID returns the daemon-assigned handle ID.
func (h *Handle) ID() string { return h.id }

// Info returns the handle description from the last call that returned it.
func (h *Handle) Info() api.HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *Handle) setInfo(info api.HandleInfo) {
	if info.ID == "" {
		return
	}
	h.mu.Lock()
	h.info = info
	h.mu.Unlock()
}

// Open opens endpoint minor.
func (c *Client) Open(ctx context.Context, minor int, mode device.Mode, nonblock bool) (*Handle, error) {
	var info api.HandleInfo
	_, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(api.OpenRequest{Mode: mode.String(), Nonblock: nonblock}).
			SetResult(&info).
			Post("/devices/" + strconv.Itoa(minor) + "/open")
	})
	if err != nil {
		return nil, err
	}
	return &Handle{c: c, id: info.ID, info: info}, nil
}

// Read reads up to n bytes using the handle's blocking mode.
func (h *Handle) Read(ctx context.Context, n int) ([]byte, error) {
	return h.read(ctx, n, nil)
}

// ReadNonblock reads up to n bytes without blocking this call.
func (h *Handle) ReadNonblock(ctx context.Context, n int) ([]byte, error) {
	nb := true
	return h.read(ctx, n, &nb)
}

func (h *Handle) read(ctx context.Context, n int, nonblock *bool) ([]byte, error) {
	resp, err := h.c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		r.SetQueryParam("n", strconv.Itoa(n))
		if nonblock != nil {
			r.SetQueryParam("nonblock", strconv.FormatBool(*nonblock))
		}
		return r.Post("/handles/" + h.id + "/read")
	})
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Write writes p and returns how many bytes the endpoint accepted, which
// may be fewer than len(p).
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	return h.write(ctx, p, nil)
}

// WriteNonblock writes p without blocking this call.
func (h *Handle) WriteNonblock(ctx context.Context, p []byte) (int, error) {
	nb := true
	return h.write(ctx, p, &nb)
}

func (h *Handle) write(ctx context.Context, p []byte, nonblock *bool) (int, error) {
	var out api.WriteResponse
	_, err := h.c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		if nonblock != nil {
			r.SetQueryParam("nonblock", strconv.FormatBool(*nonblock))
		}
		return r.SetHeader("Content-Type", octetStream).
			SetBody(p).
			SetResult(&out).
			Post("/handles/" + h.id + "/write")
	})
	if err != nil {
		return 0, err
	}
	return out.Written, nil
}

// WriteAll keeps writing until all of p is accepted.
func (h *Handle) WriteAll(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := h.Write(ctx, p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Ioctl applies a control command to the handle's endpoint.
func (h *Handle) Ioctl(ctx context.Context, cmd device.Command, arg int) error {
	var info api.HandleInfo
	_, err := h.c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(api.IoctlRequest{Command: strconv.FormatUint(uint64(cmd), 10), Arg: arg}).
			SetResult(&info).
			Post("/handles/" + h.id + "/ioctl")
	})
	if err != nil {
		return err
	}
	h.setInfo(info)
	return nil
}

// SetNonblock changes the handle's default blocking mode.
func (h *Handle) SetNonblock(ctx context.Context, nonblock bool) error {
	var info api.HandleInfo
	_, err := h.c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(api.NonblockRequest{Nonblock: nonblock}).
			SetResult(&info).
			Put("/handles/" + h.id + "/nonblock")
	})
	if err != nil {
		return err
	}
	h.setInfo(info)
	return nil
}

// Close releases the handle on the daemon.
func (h *Handle) Close(ctx context.Context) error {
	_, err := h.c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete("/handles/" + h.id)
	})
	return err
}

// Submit pushes payload onto the message stack.
func (c *Client) Submit(ctx context.Context, payload []byte) error {
	return c.SubmitN(ctx, payload, len(payload))
}

// SubmitN pushes the first length bytes of payload.
func (c *Client) SubmitN(ctx context.Context, payload []byte, length int) error {
	_, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", octetStream).
			SetQueryParam("length", strconv.Itoa(length)).
			SetBody(payload).
			Post("/msgbox")
	})
	return err
}

// Retrieve pops the most recent message into a buffer of size bytes.
func (c *Client) Retrieve(ctx context.Context, size int) ([]byte, error) {
	resp, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("size", strconv.Itoa(size)).Get("/msgbox")
	})
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Devices returns the device table snapshot.
func (c *Client) Devices(ctx context.Context) (device.Stats, error) {
	var stats device.Stats
	_, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&stats).Get("/devices")
	})
	return stats, err
}

// Handles lists the handles open on the daemon.
func (c *Client) Handles(ctx context.Context) ([]api.HandleInfo, error) {
	var out struct {
		Handles []api.HandleInfo `json:"handles"`
	}
	_, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/handles")
	})
	return out.Handles, err
}

// Health checks that the daemon is up and not shutting down.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.call(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/health")
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return out, nil
}
