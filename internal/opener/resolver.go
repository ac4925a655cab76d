package opener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrResolveTimeout is returned when a target did not finish loading within
// the resolve timeout
var ErrResolveTimeout = errors.New("timeout waiting for target to resolve")

// DefaultResolveTimeout bounds a manual resolve operation
const DefaultResolveTimeout = 15 * time.Second

// Resolver performs manual URL resolution: fetch the target in the
// background, follow every redirect until the page settles, capture the
// final address, and tear everything down. The operation is bounded by a
// timeout and cleans up on both the success and the timeout path.
type Resolver struct {
	logger  *zap.Logger
	client  *http.Client
	timeout time.Duration
}

// NewResolver creates a resolver with the given timeout; zero means the default
func NewResolver(logger *zap.Logger, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{
		logger:  logger.Named("resolver"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Resolve returns the final URL the target redirects to. On timeout it
// cancels the in-flight request and returns ErrResolveTimeout.
func (r *Resolver) Resolve(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			r.logger.Warn("Resolve timed out", zap.String("target", target))
			return "", ErrResolveTimeout
		}
		return "", fmt.Errorf("failed to resolve %q: %w", target, err)
	}
	defer resp.Body.Close()

	resolved := resp.Request.URL.String()
	if resolved != target {
		r.logger.Info("Resolved target",
			zap.String("target", target),
			zap.String("resolved", resolved))
	}
	return resolved, nil
}
