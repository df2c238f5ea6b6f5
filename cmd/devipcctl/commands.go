package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/client"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// usageError marks bad command-line input.
type usageError struct{ error }

func (e *env) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *env) send(ctx context.Context, args []string) error {
	fs := e.flags("send")
	length := fs.Int("length", -1, "bytes to submit, default the whole message")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	msg := []byte(strings.Join(fs.Args(), " "))
	n := len(msg)
	if *length >= 0 {
		n = *length
	}

	fmt.Fprintf(e.stdout, "sending message: %s\n", msg)
	if err := e.c.SubmitN(ctx, msg, n); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "message sent")
	return nil
}

func (e *env) recv(ctx context.Context, args []string) error {
	fs := e.flags("recv")
	size := fs.Int("size", 1024, "receive buffer size")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	msg, err := e.c.Retrieve(ctx, *size)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "received message: %s\n", msg)
	return nil
}

func (e *env) exchange(ctx context.Context, args []string) error {
	fs := e.flags("exchange")
	wait := fs.Duration("wait", 0, "delay before checking for a message")
	size := fs.Int("size", 128, "receive buffer size")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	if *wait > 0 {
		fmt.Fprintf(e.stdout, "waiting %s for incoming messages\n", *wait)
		if err := sleep(ctx, *wait); err != nil {
			return err
		}
	}

	msg, err := e.c.Retrieve(ctx, *size)
	switch {
	case err == nil:
		fmt.Fprintf(e.stdout, "received message: %s\n", msg)
	case errors.Is(err, errno.ErrEmpty):
		fmt.Fprintln(e.stdout, "no message received")
	default:
		return err
	}

	out := []byte(strings.Join(fs.Args(), " "))
	if err := e.c.Submit(ctx, out); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "sent message: %s\n", out)
	return nil
}

type endpointFlags struct {
	minor    *int
	nonblock *bool
}

func (e *env) endpointFlags(fs *pflag.FlagSet) endpointFlags {
	return endpointFlags{
		minor:    fs.Int("minor", 0, "endpoint minor number"),
		nonblock: fs.Bool("nonblock", false, "fail with EAGAIN instead of blocking"),
	}
}

// withHandle opens an endpoint, runs fn and always closes the handle, even
// when ctx was cancelled.
func (e *env) withHandle(ctx context.Context, ef endpointFlags, mode device.Mode, fn func(*client.Handle) error) error {
	h, err := e.c.Open(ctx, *ef.minor, mode, *ef.nonblock)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Close(closeCtx)
	}()
	return fn(h)
}

func (e *env) write(ctx context.Context, args []string) error {
	fs := e.flags("write")
	ef := e.endpointFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	var data []byte
	if fs.NArg() > 0 {
		data = []byte(strings.Join(fs.Args(), " "))
	} else {
		var err error
		if data, err = io.ReadAll(e.stdin); err != nil {
			return err
		}
	}

	return e.withHandle(ctx, ef, device.ModeWrite, func(h *client.Handle) error {
		if *ef.nonblock {
			n, err := h.Write(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stderr, "wrote %d of %d bytes\n", n, len(data))
			return nil
		}
		if err := h.WriteAll(ctx, data); err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "wrote %d bytes\n", len(data))
		return nil
	})
}

func (e *env) read(ctx context.Context, args []string) error {
	fs := e.flags("read")
	ef := e.endpointFlags(fs)
	n := fs.Int("n", 1024, "bytes per read")
	follow := fs.Bool("follow", false, "keep reading until interrupted")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	return e.withHandle(ctx, ef, device.ModeRead, func(h *client.Handle) error {
		for {
			data, err := h.Read(ctx, *n)
			if err != nil {
				if *follow && ctx.Err() != nil {
					return nil
				}
				return err
			}
			if _, err := e.stdout.Write(data); err != nil {
				return err
			}
			if !*follow {
				return nil
			}
		}
	})
}

func (e *env) ioctl(ctx context.Context, args []string) error {
	fs := e.flags("ioctl")
	ef := e.endpointFlags(fs)
	name := fs.String("cmd", "", "set_buffer_size, set_max_readers or a number")
	arg := fs.Int("arg", 0, "command argument")
	writer := fs.Bool("writer", false, "open in write mode instead of read mode")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	cmd, err := device.ParseCommand(*name)
	if err != nil {
		return err
	}
	mode := device.ModeRead
	if *writer {
		mode = device.ModeWrite
	}

	return e.withHandle(ctx, ef, mode, func(h *client.Handle) error {
		if err := h.Ioctl(ctx, cmd, *arg); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s(%d) applied to endpoint %d\n", cmd, *arg, *ef.minor)
		return nil
	})
}

func (e *env) stats(ctx context.Context, args []string) error {
	stats, err := e.c.Devices(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// forktest runs workers that each send one message and then receive one.
// With a LIFO stack a worker may receive another worker's message.
func (e *env) forktest(ctx context.Context, args []string) error {
	fs := e.flags("forktest")
	workers := fs.Int("workers", 2, "concurrent workers")
	size := fs.Int("size", 1024, "receive buffer size")
	if err := fs.Parse(args); err != nil {
		return usageError{err}
	}

	var mu sync.Mutex
	logf := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(e.stdout, format, a...)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= *workers; i++ {
		i := i // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			msg := fmt.Sprintf("Hello from worker %d", i)
			logf("worker %d sending message: %s\n", i, msg)
			if err := e.c.Submit(gctx, []byte(msg)); err != nil {
				return fmt.Errorf("worker %d send: %w", i, err)
			}

			got, err := e.c.Retrieve(gctx, *size)
			if err != nil {
				return fmt.Errorf("worker %d receive: %w", i, err)
			}
			logf("worker %d received message: %s\n", i, got)
			return nil
		})
	}
	return g.Wait()
}
