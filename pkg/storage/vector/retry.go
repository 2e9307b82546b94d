/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig tunes a Retrier's backoff behavior.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig is a reasonable general-purpose retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// DatabaseRetryConfig is tuned for pgvector/Postgres operations: more
// attempts, longer ceiling, gentler backoff growth than the default.
func DatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 1.5,
		Jitter:            true,
	}
}

var retryableErrorSubstrings = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"too many connections",
	"deadlock detected",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"connection lost",
	"server closed the connection",
	"broken pipe",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
}

// IsRetryableError reports whether err looks transient enough to be
// worth another attempt. context.Canceled is deliberately excluded:
// the caller asked to stop, so retrying would ignore that.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return re.retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryableError lets a caller override IsRetryableError's heuristic
// with an explicit verdict and reason.
type RetryableError struct {
	err       error
	retryable bool
	reason    string
}

// WrapRetryableError attaches an explicit retryable verdict to err.
// Returns nil if err is nil.
func WrapRetryableError(err error, retryable bool, reason string) error {
	if err == nil {
		return nil
	}
	return &RetryableError{err: err, retryable: retryable, reason: reason}
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable=%t (%s): %v", e.retryable, e.reason, e.err)
}

func (e *RetryableError) Unwrap() error { return e.err }

// Operation is a unit of work a Retrier executes, given the 1-indexed
// attempt number it is currently on.
type Operation func(ctx context.Context, attempt int) (any, error)

// Retrier retries an Operation with exponential backoff, stopping on
// a non-retryable error, exhausted attempts, or context cancellation.
type Retrier struct {
	cfg RetryConfig
	log *logrus.Logger
}

// NewRetrier builds a Retrier. A nil logger disables retry logging.
func NewRetrier(cfg RetryConfig, log *logrus.Logger) *Retrier {
	return &Retrier{cfg: cfg, log: log}
}

// ExecuteWithType runs op, retrying on retryable failures per the
// Retrier's configuration.
func (r *Retrier) ExecuteWithType(ctx context.Context, op Operation) (any, error) {
	maxAttempts := r.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == maxAttempts {
			break
		}

		delay := r.backoffDelay(attempt)
		if r.log != nil {
			r.log.WithError(err).WithField("attempt", attempt).Debug("retrying operation")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}

func (r *Retrier) backoffDelay(attempt int) time.Duration {
	delay := float64(r.cfg.InitialDelay) * pow(r.cfg.BackoffMultiplier, attempt-1)
	if max := float64(r.cfg.MaxDelay); delay > max {
		delay = max
	}
	if r.cfg.Jitter {
		delay = delay * (0.5 + rand.Float64()*0.5)
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// DatabaseRetrier wraps a Retrier configured with DatabaseRetryConfig
// and adds operation-name logging for pgvector/Postgres call sites.
type DatabaseRetrier struct {
	retrier *Retrier
	log     *logrus.Logger
}

// NewDatabaseRetrier builds a DatabaseRetrier.
func NewDatabaseRetrier(log *logrus.Logger) *DatabaseRetrier {
	return &DatabaseRetrier{retrier: NewRetrier(DatabaseRetryConfig(), log), log: log}
}

// ExecuteDBOperation runs op under the database retry policy, tagging
// log output with name.
func (d *DatabaseRetrier) ExecuteDBOperation(ctx context.Context, name string, op Operation) (any, error) {
	result, err := d.retrier.ExecuteWithType(ctx, op)
	if err != nil && d.log != nil {
		d.log.WithError(err).WithField("operation", name).Error("database operation failed after retries")
	}
	return result, err
}

// RetryIfNeeded is a minimal adapter for call sites that just have a
// plain func() error and don't need the attempt-aware Operation shape.
func RetryIfNeeded(ctx context.Context, cfg RetryConfig, log *logrus.Logger, fn func() error) error {
	retrier := NewRetrier(cfg, log)
	_, err := retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		return nil, fn()
	})
	return err
}
