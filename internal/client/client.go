package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// baseURL is a placeholder host; every connection dials the Unix socket.
const baseURL = "http://devipc"

// Options configures a Client.
type Options struct {
	Socket       string
	ClientID     string
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit caps requests per second; 0 means unlimited
	RateLimit float64
	Breaker   resilience.Settings
	Logger    *zap.Logger
}

// DefaultOptions returns options for the socket at path.
func DefaultOptions(path string) Options {
	return Options{
		Socket:       path,
		MaxRetries:   3,
		RetryWaitMin: 50 * time.Millisecond,
		RetryWaitMax: time.Second,
		Breaker: resilience.Settings{
			Threshold: 5,
			Cooldown:  2 * time.Second,
		},
	}
}

// Client talks to devipcd over its Unix socket.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *zap.Logger
}

// New builds a client. Connection attempts are retried while the daemon
// is coming up; requests that reached the daemon are never replayed.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Debug("retrying request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("attempt", attempt))
		}
	}

	if tr, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		socket := opts.Socket
		tr.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "devipc-client/1.0")
	if opts.ClientID != "" {
		restyClient.SetHeader(api.ClientHeader, opts.ClientID)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	bs := opts.Breaker
	bs.IsFailure = isTransportFailure
	if bs.OnStateChange == nil {
		bs.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		}
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: resilience.New("devipcd", bs),
		log:     log,
	}
}

// checkRetry retries dial failures and rate-limit rejections only. Errno
// replies and errors after the request was sent are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var op *net.OpError
		return errors.As(err, &op) && op.Op == "dial", nil
	}
	if resp.Header.Get(api.ErrnoHeader) != "" {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// call sends one request through the limiter and breaker and decodes errno
// replies.
func (c *Client) call(ctx context.Context, build func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	return resilience.Do(c.breaker, func() (*resty.Response, error) {
		resp, err := build(c.resty.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return resp, decodeError(resp)
		}
		return resp, nil
	})
}

func decodeError(resp *resty.Response) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Code == 0 {
		return fmt.Errorf("devipcd: unexpected status %s", resp.Status())
	}
	return &RemoteError{
		Status:  resp.StatusCode(),
		Errno:   body.Errno,
		Message: body.Error,
		Err:     errno.FromCode(body.Code),
	}
}
