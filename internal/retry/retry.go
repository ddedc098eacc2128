// Package retry wraps an operation in exponential backoff. Workers use it
// to ride out a master that is mid-restart instead of failing discovery or
// registration on the first transient error.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config holds exponential backoff tuning.
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig returns up to 3 retries, starting at 100ms and backing off
// to 5s, bounded at 30s total.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Operation is a retryable unit of work.
type Operation func() error

// Do executes operation with exponential backoff, stopping early on a
// non-retryable error.
func Do(ctx context.Context, cfg Config, operation Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.MaxElapsedTime

	bWithRetries := backoff.WithMaxRetries(b, cfg.MaxRetries)
	bWithContext := backoff.WithContext(bWithRetries, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err != nil {
			if !IsRetryable(err) {
				log.Debug().Int("attempt", attempt).Err(err).Msg("non-retryable error, stopping retries")
				return backoff.Permanent(err)
			}
			log.Debug().Int("attempt", attempt).Err(err).Msg("retryable error, will retry")
		}
		return err
	}, bWithContext)
}

// IsRetryable reports whether err is worth retrying: context cancellation
// and client-fault gRPC codes are not, server-fault and unknown codes are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case codes.OK, codes.Canceled, codes.InvalidArgument, codes.NotFound,
		codes.AlreadyExists, codes.PermissionDenied, codes.FailedPrecondition,
		codes.Unimplemented, codes.Unauthenticated:
		return false
	default:
		return true
	}
}
