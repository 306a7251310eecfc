// Package transport bounds and retries calls to the mailbox, spreadsheet
// and webhook collaborators.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Error is a failed or non-2xx call to an external collaborator.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Policy bounds each attempt with Timeout and makes at most Attempts tries.
type Policy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// DefaultPolicy allows one retry.
var DefaultPolicy = Policy{
	Attempts: 2,
	Timeout:  30 * time.Second,
	Backoff:  time.Second,
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry runs fn under p. The returned error is always a *Error.
func Retry(ctx context.Context, p Policy, op string, logger *slog.Logger, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runOnce(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || ctx.Err() != nil || attempt == attempts {
			break
		}
		if logger != nil {
			logger.Warn("transport call failed, retrying", "op", op, "attempt", attempt, "err", err)
		}
		if p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return wrap(op, ctx.Err())
			case <-time.After(p.Backoff):
			}
		}
	}
	return wrap(op, err)
}

func runOnce(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func wrap(op string, err error) error {
	var terr *Error
	if errors.As(err, &terr) {
		return terr
	}
	return &Error{Op: op, Err: err}
}
