package opener

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Handle is the opaque result of opening a target
type Handle struct {
	Target      string
	ResolvedURL string
	Status      int
}

// Opener opens a schedule's target. Implementations must treat failure as
// non-fatal: the engine logs it and leaves the occurrence pending for the
// next pass.
type Opener interface {
	Open(ctx context.Context, target string, background bool) (*Handle, error)
}

// HTTPOpener opens targets by fetching them over HTTP, following redirects.
// Useful for headless deployments where "open" means "hit the URL".
type HTTPOpener struct {
	logger *zap.Logger
	client *http.Client
}

// NewHTTPOpener creates an HTTP opener with the given per-open timeout
func NewHTTPOpener(logger *zap.Logger, timeout time.Duration) *HTTPOpener {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOpener{
		logger: logger.Named("opener"),
		client: &http.Client{Timeout: timeout},
	}
}

// Open implements Opener.Open
func (o *HTTPOpener) Open(ctx context.Context, target string, background bool) (*Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to open %q: status %d", target, resp.StatusCode)
	}

	o.logger.Debug("Opened target",
		zap.String("target", target),
		zap.Int("status", resp.StatusCode))

	return &Handle{
		Target:      target,
		ResolvedURL: resp.Request.URL.String(),
		Status:      resp.StatusCode,
	}, nil
}

// ExecOpener opens targets with an external command, typically the system
// browser launcher (xdg-open on Linux, open on macOS). The background hint
// is left to the launcher.
type ExecOpener struct {
	logger  *zap.Logger
	command string
}

// NewExecOpener creates an opener that shells out to command
func NewExecOpener(logger *zap.Logger, command string) *ExecOpener {
	if command == "" {
		command = "xdg-open"
	}
	return &ExecOpener{
		logger:  logger.Named("opener"),
		command: command,
	}
}

// Open implements Opener.Open
func (o *ExecOpener) Open(ctx context.Context, target string, background bool) (*Handle, error) {
	cmd := exec.CommandContext(ctx, o.command, target)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to open %q with %s: %w", target, o.command, err)
	}

	o.logger.Debug("Opened target",
		zap.String("target", target),
		zap.String("command", o.command))

	return &Handle{Target: target}, nil
}
