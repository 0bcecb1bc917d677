// Package retry wraps wire calls in bounded exponential backoff with jitter and a fixed
// per-attempt timeout. Only transient failures are retried; precondition failures and other
// definitive answers are returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/cyp0633/davmutate/errs"
)

// Config bounds the retry budget.
type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	JitterPercent  uint64
}

// DefaultConfig returns three attempts with 200ms, 400ms backoff and a 15s attempt timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 15 * time.Second,
		JitterPercent:  10,
	}
}

// Executor runs wire calls with bounded exponential backoff. It is safe for concurrent use;
// every Do call builds its own backoff.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates an executor. Zero fields in cfg fall back to DefaultConfig.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

func (e *Executor) backoff() goretry.Backoff {
	b := goretry.NewExponential(e.cfg.BaseDelay)
	b = goretry.WithCappedDuration(e.cfg.MaxDelay, b)
	if e.cfg.JitterPercent > 0 {
		b = goretry.WithJitterPercent(e.cfg.JitterPercent, b)
	}
	return goretry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), b)
}

// Do runs fn until it succeeds, fails with a non-retryable error or the budget is exhausted.
// It reports how many attempts were made. Exhausting the budget on a transient failure yields
// an *errs.NetworkError; non-retryable errors are returned unchanged.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	transient := false
	err := goretry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			transient = errors.Is(ctx.Err(), context.DeadlineExceeded)
			return err
		}
		transient = true
		e.logger.Warn("transient failure, retrying",
			"op", op,
			"attempt", attempts,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err)
		return goretry.RetryableError(err)
	})
	if err == nil {
		return attempts, nil
	}
	if transient {
		return attempts, &errs.NetworkError{Op: op, Attempts: attempts, Err: err}
	}
	return attempts, err
}

// Value is Do for functions that produce a value.
func Value[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var out T
	attempts, err := e.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, attempts, err
}

type statusCoder interface {
	HTTPStatus() int
}

// Retryable classifies err as transient: transport failures, attempt timeouts and the
// retryable HTTP statuses.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatus())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported:
		return false
	}
	return code >= 500 && code < 600
}
