package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"rproxy-go/internal/model"
)

// ErrAttemptTimeout marks an upstream attempt that ran past its deadline.
var ErrAttemptTimeout = errors.New("upstream attempt timed out")

// forward sends the request upstream, retrying transport failures until the
// attempt budget is spent. Any HTTP response, whatever its status, ends the loop.
// On failure the error of the last attempt is returned.
func (f *Forwarder) forward(ctx context.Context, method string, target Target, header http.Header, body []byte) (*model.ProxyResponse, error) {
	attempts := max(f.cfg.MaxRetries, 1)
	url := target.URL()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := f.attempt(ctx, method, url, header, body)
		if err == nil {
			f.countAttempt("success")
			return resp, nil
		}
		lastErr = err

		if isTimeout(err) {
			f.countAttempt("timeout")
		} else {
			f.countAttempt("error")
		}
		f.logger.Warn("upstream attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"method", method,
			"host", target.Host(),
			"err", err,
		)

		// The client is gone; further attempts cannot be delivered.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

// attempt performs one upstream call. Its timer covers the call up to response
// headers; the attempt context lives until the returned body is closed.
func (f *Forwarder) attempt(parent context.Context, method, url string, header http.Header, body []byte) (*model.ProxyResponse, error) {
	ctx, cancel := context.WithCancelCause(parent)
	timer := time.AfterFunc(f.cfg.Timeout, func() { cancel(ErrAttemptTimeout) })

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	resp, err := f.upstream.DoStream(ctx, method, url, header.Clone(), r)
	stopped := timer.Stop()

	if err == nil && !stopped {
		// Headers arrived as the deadline fired; the body is already canceled.
		_ = resp.Body.Close()
		err = ErrAttemptTimeout
	}
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrAttemptTimeout) && !errors.Is(err, ErrAttemptTimeout) {
			err = fmt.Errorf("%w: %w", ErrAttemptTimeout, err)
		}
		cancel(nil)
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// isTimeout reports whether err was caused by an attempt deadline.
func isTimeout(err error) bool {
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cancelOnClose releases the attempt context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel(nil)
	return err
}
