package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/config"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/shared/id"
)

type fixture struct {
	t      *testing.T
	kernel *kernel.Kernel
	srv    *Server
	ts     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

func newFixtureWith(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.RateLimitEnabled = false
	cfg.Devices.BufferSize = 16
	if mutate != nil {
		mutate(cfg)
	}

	k, err := kernel.New(cfg.Devices, cfg.MsgBox, nil)
	require.NoError(t, err)

	srv := New(k, Options{Config: cfg.Server, Development: true})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		k.Close()
	})
	return &fixture{t: t, kernel: k, srv: srv, ts: ts}
}

func (f *fixture) do(method, path string, body io.Reader) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, body)
	require.NoError(f.t, err)
	resp, err := f.ts.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) doJSON(method, path string, v any) *http.Response {
	f.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(f.t, err)
	return f.do(method, path, bytes.NewReader(b))
}

func (f *fixture) open(minor int, mode string, nonblock bool) string {
	f.t.Helper()
	resp := f.doJSON(http.MethodPost, "/devices/"+strconv.Itoa(minor)+"/open",
		api.OpenRequest{Mode: mode, Nonblock: nonblock})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)

	var info api.HandleInfo
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&info))
	return info.ID
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func assertErrno(t *testing.T, resp *http.Response, status int, want error) {
	t.Helper()
	assert.Equal(t, status, resp.StatusCode)
	assert.Equal(t, strconv.Itoa(errno.Code(want)), resp.Header.Get(api.ErrnoHeader))

	var e api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, errno.Name(want), e.Errno)
	assert.Equal(t, errno.Code(want), e.Code)
}

func TestOpenWriteRead(t *testing.T) {
	f := newFixture(t)

	w := f.open(0, "write", false)
	r := f.open(0, "read", false)
	assert.True(t, strings.HasPrefix(w, "fh_"))

	resp := f.do(http.MethodPost, "/handles/"+w+"/write", strings.NewReader("hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var wr api.WriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wr))
	assert.Equal(t, 5, wr.Written)

	resp = f.do(http.MethodPost, "/handles/"+r+"/read?n=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "hel", body(t, resp))

	resp = f.do(http.MethodPost, "/handles/"+r+"/read?n=100", nil)
	assert.Equal(t, "lo", body(t, resp))
}

func TestShortWriteWhenFull(t *testing.T) {
	f := newFixture(t)
	w := f.open(1, "write", true)

	resp := f.do(http.MethodPost, "/handles/"+w+"/write", strings.NewReader(strings.Repeat("x", 20)))
	var wr api.WriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wr))
	assert.Equal(t, 16, wr.Written)

	resp = f.do(http.MethodPost, "/handles/"+w+"/write", strings.NewReader("y"))
	assertErrno(t, resp, http.StatusConflict, errno.ErrWouldBlock)
}

func TestOpenErrors(t *testing.T) {
	f := newFixture(t)
	f.open(0, "write", false)

	tests := []struct {
		name   string
		path   string
		req    any
		status int
		want   error
	}{
		{"second writer", "/devices/1/open", api.OpenRequest{Mode: "write"}, http.StatusConflict, errno.ErrBusy},
		{"unknown minor", "/devices/7/open", api.OpenRequest{Mode: "read"}, http.StatusNotFound, errno.ErrNoDevice},
		{"bad minor", "/devices/x/open", api.OpenRequest{Mode: "read"}, http.StatusBadRequest, errno.ErrInvalidArgument},
		{"bad mode", "/devices/0/open", api.OpenRequest{Mode: "append"}, http.StatusBadRequest, errno.ErrInvalidArgument},
		{"missing mode", "/devices/0/open", map[string]any{}, http.StatusBadRequest, errno.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertErrno(t, f.doJSON(http.MethodPost, tt.path, tt.req), tt.status, tt.want)
		})
	}
}

func TestHandleErrors(t *testing.T) {
	f := newFixture(t)
	r := f.open(0, "read", true)

	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/read", nil), http.StatusConflict, errno.ErrWouldBlock)
	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/write", strings.NewReader("x")), http.StatusBadRequest, errno.ErrBadHandle)
	assertErrno(t, f.do(http.MethodPost, "/handles/fh_nope/read", nil), http.StatusBadRequest, errno.ErrBadHandle)
	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/read?n=abc", nil), http.StatusBadRequest, errno.ErrInvalidArgument)
	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/read?nonblock=maybe", nil), http.StatusBadRequest, errno.ErrInvalidArgument)
	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/read?n=-1", nil), http.StatusBadRequest, errno.ErrInvalidArgument)

	resp := f.do(http.MethodDelete, "/handles/"+r, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assertErrno(t, f.do(http.MethodDelete, "/handles/"+r, nil), http.StatusBadRequest, errno.ErrBadHandle)
}

func TestBlockingReadWokenByWrite(t *testing.T) {
	f := newFixture(t)
	r := f.open(0, "read", false)
	w := f.open(0, "write", false)

	got := make(chan string, 1)
	go func() {
		resp, err := f.ts.Client().Post(f.ts.URL+"/handles/"+r+"/read?n=8", "", nil)
		if err != nil {
			got <- err.Error()
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		got <- string(b)
	}()

	require.Eventually(t, func() bool {
		return f.kernel.Stats().Devices.Endpoints[0].BlockedReaders == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.do(http.MethodPost, "/handles/"+w+"/write", strings.NewReader("ping"))

	select {
	case s := <-got:
		assert.Equal(t, "ping", s)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read was not woken")
	}
}

func blockedRead(f *fixture, handle string) <-chan *http.Response {
	out := make(chan *http.Response, 1)
	go func() {
		resp, err := f.ts.Client().Post(f.ts.URL+"/handles/"+handle+"/read", "", nil)
		if err != nil {
			close(out)
			return
		}
		out <- resp
	}()
	return out
}

func TestCloseReleasesBlockedRead(t *testing.T) {
	f := newFixture(t)
	r := f.open(1, "read", false)

	out := blockedRead(f, r)
	require.Eventually(t, func() bool {
		return f.kernel.Stats().Devices.Endpoints[1].BlockedReaders == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.do(http.MethodDelete, "/handles/"+r, nil)

	select {
	case resp := <-out:
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assertErrno(t, resp, http.StatusBadRequest, errno.ErrBadHandle)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read survived close")
	}
}

func TestShutdownReleasesBlockedRead(t *testing.T) {
	f := newFixture(t)
	r := f.open(0, "read", false)

	out := blockedRead(f, r)
	require.Eventually(t, func() bool {
		return f.kernel.Stats().Devices.Endpoints[0].BlockedReaders == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	select {
	case resp := <-out:
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assertErrno(t, resp, http.StatusServiceUnavailable, errno.ErrShutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read survived shutdown")
	}

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/health", nil).StatusCode)
	assert.Equal(t, 0, f.kernel.Stats().Devices.OpenHandles)

	resp := f.doJSON(http.MethodPost, "/devices/0/open", api.OpenRequest{Mode: "read"})
	assertErrno(t, resp, http.StatusServiceUnavailable, errno.ErrShutdown)
	assert.Equal(t, 0, f.kernel.Stats().Devices.OpenHandles)
	assert.Equal(t, 0, f.kernel.Stats().Devices.Readers)
}

func TestHandleTableRejectsAddAfterClose(t *testing.T) {
	f := newFixture(t)
	tbl := newHandleTable(id.NewGenerator())

	h, err := f.kernel.Open(0, device.ModeWrite, false)
	require.NoError(t, err)
	_, err = tbl.add(h)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.closeAll(errno.ErrShutdown))

	late, err := f.kernel.Open(0, device.ModeWrite, false)
	require.NoError(t, err, "closeAll released the writer permit")
	_, err = tbl.add(late)
	assert.ErrorIs(t, err, errno.ErrShutdown)
	assert.Equal(t, 0, tbl.len())
	require.NoError(t, late.Close(), "caller keeps ownership of a rejected handle")
}

func TestGlobalRateLimitSharedAcrossClients(t *testing.T) {
	f := newFixtureWith(t, func(c *config.Config) {
		c.Server.GlobalRequestsPerSecond = 1
		c.Server.GlobalBurst = 2
	})

	get := func(client string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set(api.ClientHeader, client)
		resp, err := f.ts.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("a").StatusCode)
	assert.Equal(t, http.StatusOK, get("b").StatusCode)
	resp := get("c")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(api.ErrnoHeader))
}

func TestIoctl(t *testing.T) {
	f := newFixture(t)
	w := f.open(0, "write", false)

	resp := f.doJSON(http.MethodPost, "/handles/"+w+"/ioctl", api.IoctlRequest{Command: "set_buffer_size", Arg: 64})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 64, f.kernel.Stats().Devices.Endpoints[0].Capacity)

	resp = f.doJSON(http.MethodPost, "/handles/"+w+"/ioctl", api.IoctlRequest{Command: "set_max_readers", Arg: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f.open(1, "read", false)
	assertErrno(t, f.doJSON(http.MethodPost, "/devices/1/open", api.OpenRequest{Mode: "read"}),
		http.StatusConflict, errno.ErrBusy)

	assertErrno(t, f.doJSON(http.MethodPost, "/handles/"+w+"/ioctl", api.IoctlRequest{Command: "99"}),
		http.StatusBadRequest, errno.ErrUnsupported)
	assertErrno(t, f.doJSON(http.MethodPost, "/handles/"+w+"/ioctl", api.IoctlRequest{Command: "eject"}),
		http.StatusBadRequest, errno.ErrUnsupported)
	assertErrno(t, f.doJSON(http.MethodPost, "/handles/"+w+"/ioctl", api.IoctlRequest{Command: "set_buffer_size", Arg: 0}),
		http.StatusBadRequest, errno.ErrInvalidArgument)
}

func TestSetNonblock(t *testing.T) {
	f := newFixture(t)
	r := f.open(0, "read", false)

	resp := f.doJSON(http.MethodPut, "/handles/"+r+"/nonblock", api.NonblockRequest{Nonblock: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assertErrno(t, f.do(http.MethodPost, "/handles/"+r+"/read", nil), http.StatusConflict, errno.ErrWouldBlock)
}

func TestMsgBox(t *testing.T) {
	f := newFixture(t)

	for _, msg := range []string{"first", "second", "third!"} {
		resp := f.do(http.MethodPost, "/msgbox", strings.NewReader(msg))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	assert.Equal(t, "third!", body(t, f.do(http.MethodGet, "/msgbox?size=64", nil)))

	// too small: rejected and discarded
	assertErrno(t, f.do(http.MethodGet, "/msgbox?size=3", nil), http.StatusRequestEntityTooLarge, errno.ErrTooLarge)
	assert.Equal(t, "first", body(t, f.do(http.MethodGet, "/msgbox?size=64", nil)))

	assertErrno(t, f.do(http.MethodGet, "/msgbox?size=64", nil), http.StatusNotFound, errno.ErrEmpty)
	assertErrno(t, f.do(http.MethodGet, "/msgbox", nil), http.StatusBadRequest, errno.ErrInvalidArgument)
	assertErrno(t, f.do(http.MethodGet, "/msgbox?size=0", nil), http.StatusBadRequest, errno.ErrInvalidArgument)
}

func TestMsgBoxSubmitErrors(t *testing.T) {
	f := newFixture(t)

	assertErrno(t, f.do(http.MethodPost, "/msgbox", nil), http.StatusBadRequest, errno.ErrInvalidArgument)
	assertErrno(t, f.do(http.MethodPost, "/msgbox", strings.NewReader(strings.Repeat("a", 4097))),
		http.StatusBadRequest, errno.ErrInvalidArgument)
	assertErrno(t, f.do(http.MethodPost, "/msgbox?length=10", strings.NewReader("short")),
		http.StatusBadRequest, errno.ErrFault)

	resp := f.do(http.MethodPost, "/msgbox?length=2", strings.NewReader("abcdef"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "ab", body(t, f.do(http.MethodGet, "/msgbox?size=100000", nil)))
}

func TestIntrospection(t *testing.T) {
	f := newFixture(t)
	a := f.open(0, "read", false)
	b := f.open(1, "write", false)

	var list struct {
		Handles []api.HandleInfo `json:"handles"`
	}
	require.NoError(t, json.NewDecoder(f.do(http.MethodGet, "/handles", nil).Body).Decode(&list))
	require.Len(t, list.Handles, 2)
	assert.Equal(t, a, list.Handles[0].ID)
	assert.Equal(t, b, list.Handles[1].ID)
	assert.Equal(t, "write", list.Handles[1].Mode)

	resp := f.do(http.MethodGet, "/devices", nil)
	assert.Contains(t, body(t, resp), `"writer_held":true`)

	resp = f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), `"handles":2`)

	f.do(http.MethodPost, "/msgbox", strings.NewReader("m"))
	metrics := body(t, f.do(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics, "devipc_msgbox_depth 1")
	assert.Contains(t, metrics, "devipc_handles_open 2")
	assert.Contains(t, metrics, `devipc_operations_total{op="open",result="OK"} 2`)

	assert.Contains(t, body(t, f.do(http.MethodGet, "/stats", nil)), `"msgbox"`)
}

func TestServeUnixSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Server.Socket = filepath.Join(t.TempDir(), "devipc.sock")

	k, err := kernel.New(cfg.Devices, cfg.MsgBox, nil)
	require.NoError(t, err)
	defer k.Close()

	srv := New(k, Options{Config: cfg.Server, Development: true})
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	httpc := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", cfg.Server.Socket)
		},
	}}

	require.Eventually(t, func() bool {
		resp, err := httpc.Get("http://devipc/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-errc)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.sock")

	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	ln, err := Listen(path)
	require.NoError(t, err)
	ln.Close()

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o600))
	_, err = Listen(plain)
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errno.ErrInvalidArgument, http.StatusBadRequest},
		{errno.ErrFault, http.StatusBadRequest},
		{errno.ErrBadHandle, http.StatusBadRequest},
		{errno.ErrUnsupported, http.StatusBadRequest},
		{errno.ErrEmpty, http.StatusNotFound},
		{errno.ErrNoDevice, http.StatusNotFound},
		{errno.ErrBusy, http.StatusConflict},
		{errno.ErrWouldBlock, http.StatusConflict},
		{errno.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errno.ErrNoMemory, http.StatusInsufficientStorage},
		{errno.ErrShutdown, http.StatusServiceUnavailable},
		{errno.ErrInterrupted, StatusClientClosed},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), errno.Name(tt.err))
	}
}
