package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/client"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/config"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/logging"
)

const usage = `usage: devipcctl [--socket path] [--timeout d] [-v] <command> [args]

commands:
  send [--length n] <message>   push a message onto the stack
  recv [--size n]               pop the most recent message
  exchange [--wait d] <message> receive if anything is queued, then send
  write --minor n [--nonblock] [data]   write data (or stdin) to an endpoint
  read --minor n [--n bytes] [--nonblock] [--follow]   read from an endpoint
  ioctl --minor n --cmd name --arg n     apply a control command
  stats                        print device table state
  forktest [--workers n]        concurrent send/receive workers
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type env struct {
	c      *client.Client
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("devipcctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	fs.SetInterspersed(false)

	socket := fs.String("socket", defaultSocket(), "daemon socket")
	timeout := fs.Duration("timeout", 0, "overall timeout, 0 for none")
	verbose := fs.BoolP("verbose", "v", false, "log client retries and breaker changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	opts := client.DefaultOptions(*socket)
	if *verbose {
		logger := logging.NewDevelopment()
		defer logger.Sync()
		opts.Logger = logger.Named("client")
	}

	e := &env{
		c:      client.New(opts),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	commands := map[string]func(context.Context, []string) error{
		"send":     e.send,
		"recv":     e.recv,
		"exchange": e.exchange,
		"write":    e.write,
		"read":     e.read,
		"ioctl":    e.ioctl,
		"stats":    e.stats,
		"forktest": e.forktest,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "devipcctl: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err := fn(ctx, rest); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		fmt.Fprintf(stderr, "devipcctl %s: %v (return value %d)\n", cmd, err, errno.Retval(0, err))
		return exitCode(err)
	}
	return 0
}

func defaultSocket() string {
	if s := os.Getenv("DEVIPC_SOCKET"); s != "" {
		return s
	}
	return config.Default().Server.Socket
}

// exitCode follows the syscall convention loosely: the errno number when
// the daemon replied with one, 1 otherwise.
func exitCode(err error) int {
	if code := errno.Code(err); code > 0 && code < 126 {
		return code
	}
	return 1
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
