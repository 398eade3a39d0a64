package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Outcome classifies one delivery attempt. The retry loop branches on this
// value; errors are never used as control flow signals.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "permanent"
	}
}

// ClassifyStatus maps an HTTP status code onto an outcome: 2xx succeeds,
// 5xx is worth retrying, everything else is a definite rejection that must
// not be hammered.
func ClassifyStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code >= 500:
		return OutcomeRetryable
	default:
		return OutcomePermanent
	}
}

// ClassifyError maps a transport-level failure onto an outcome. Connection
// resets, refused/closed connections and timeouts are transient; anything
// else is permanent.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return OutcomeRetryable
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return OutcomeRetryable
	}
	if strings.Contains(err.Error(), "connection closed") || strings.Contains(err.Error(), "connection reset") {
		return OutcomeRetryable
	}
	return OutcomePermanent
}

// Backoff returns the pause before the given 1-based retry attempt:
// initial * 2^(attempt-1), capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := initial << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// sleep pauses for the given duration but wakes early on context
// cancellation so one slow endpoint cannot outlive the worker shutdown.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
