package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/types"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 32 << 20

// httpCaller executes one HTTP request with a per-call timeout and classifies
// failures into *types.Error so the retryer and breaker can act on them.
type httpCaller struct {
	source   string
	client   *http.Client
	timeout  time.Duration
	observer RequestObserver
	logger   *zap.Logger
}

func (c *httpCaller) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := build(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err).WithSource(c.source)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(0, start)
		return nil, classifyTransportError(ctx, c.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.observe(resp.StatusCode, start)
	if err != nil {
		return nil, classifyTransportError(ctx, c.source, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(c.source, resp.StatusCode, body)
	}
	return body, nil
}

func (c *httpCaller) observe(code int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveSourceRequest(c.source, statusLabel(code), time.Since(start).Seconds())
}

// classifyTransportError maps network level failures. All of them are retryable
// except cancellation by the caller.
func classifyTransportError(ctx context.Context, source string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrSourceTimeout, source+" request timed out").
			WithCause(err).
			WithRetryable(true).
			WithSource(source)
	}
	return types.NewError(types.ErrSourceUnavailable, source+" request failed").
		WithCause(err).
		WithRetryable(true).
		WithSource(source)
}

// classifyStatus maps non-2xx responses: 429 and 5xx are retryable, other 4xx are not.
func classifyStatus(source string, code int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	msg := fmt.Sprintf("%s returned HTTP %d: %s", source, code, snippet)

	switch {
	case code == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(code).WithRetryable(true).WithSource(source)
	case code >= 500:
		return types.NewError(types.ErrSourceUnavailable, msg).WithHTTPStatus(code).WithRetryable(true).WithSource(source)
	default:
		return types.NewError(types.ErrSourceRejected, msg).WithHTTPStatus(code).WithSource(source)
	}
}

func badResponse(source string, err error) error {
	return types.NewError(types.ErrSourceBadResponse, "decode "+source+" response").
		WithCause(err).
		WithSource(source)
}
