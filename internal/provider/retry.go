package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryProvider wraps a Provider with exponential backoff retry logic.
// A stream that fails before its first delta is re-issued; once text has
// reached the caller a failure is final.
type RetryProvider struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// WithRetry retries connection failures and HTTP 429/5xx up to maxRetries
// additional times, waiting baseDelay, 2*baseDelay, ... between attempts.
func WithRetry(p Provider, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryProvider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryProvider{inner: p, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) ModelName() string { return r.inner.ModelName() }

func (r *RetryProvider) Models(ctx context.Context) ([]string, error) {
	var models []string
	err := r.do(ctx, "models", func() error {
		var err error
		models, err = r.inner.Models(ctx)
		return err
	})
	return models, err
}

func (r *RetryProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := r.do(ctx, "complete", func() error {
		var err error
		resp, err = r.inner.Complete(ctx, req)
		return err
	})
	return resp, err
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	var ch <-chan StreamChunk
	err := r.do(ctx, "stream", func() error {
		var err error
		ch, err = r.inner.Stream(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 64)
	go r.relay(ctx, req, ch, out)
	return out, nil
}

// relay forwards chunks from ch to out. Failures are wrapped in
// ErrLLMUnavailable unless ctx ended.
func (r *RetryProvider) relay(ctx context.Context, req Request, ch <-chan StreamChunk, out chan<- StreamChunk) {
	defer close(out)

	var err error
	for attempt := 0; ; attempt++ {
		emitted := false
		if err == nil {
			if emitted, err = r.forward(ctx, ch, out); err == nil {
				return
			}
		}
		if ctx.Err() != nil || IsCanceled(err) {
			sendChunk(ctx, out, StreamChunk{Err: err, Done: true})
			return
		}
		if emitted || !isRetryable(err) || attempt >= r.maxRetries {
			sendChunk(ctx, out, StreamChunk{Err: fmt.Errorf("%w: %w", ErrLLMUnavailable, err), Done: true})
			return
		}
		delay := r.delay(attempt)
		r.logger.Warn("model stream failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if berr := r.backoff(ctx, delay); berr != nil {
			sendChunk(ctx, out, StreamChunk{Err: berr, Done: true})
			return
		}
		ch, err = r.inner.Stream(ctx, req)
	}
}

// forward copies one stream. It returns nil once the final chunk was
// delivered or ctx ended, and the stream's error otherwise.
func (r *RetryProvider) forward(ctx context.Context, ch <-chan StreamChunk, out chan<- StreamChunk) (bool, error) {
	emitted := false
	for chunk := range ch {
		if chunk.Err != nil {
			return emitted, chunk.Err
		}
		if chunk.Delta != "" {
			emitted = true
		}
		if !sendChunk(ctx, out, chunk) {
			return emitted, nil
		}
		if chunk.Done {
			return emitted, nil
		}
	}
	if ctx.Err() != nil {
		return emitted, nil
	}
	return emitted, &NetworkError{Op: "stream", Err: errors.New("stream ended without a final chunk")}
}

func sendChunk(ctx context.Context, out chan<- StreamChunk, c StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *RetryProvider) do(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || IsCanceled(err) {
			return err
		}
		if !isRetryable(err) {
			return fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
		}
		if attempt == r.maxRetries {
			break
		}
		delay := r.delay(attempt)
		r.logger.Warn("model call failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if err := r.backoff(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: after %d retries: %w", ErrLLMUnavailable, r.maxRetries, lastErr)
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

func (r *RetryProvider) delay(attempt int) time.Duration {
	return r.baseDelay << attempt
}

func (r *RetryProvider) backoff(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
