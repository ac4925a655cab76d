package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Default cadences for the periodic jobs
const (
	DefaultPollInterval        = 6 * time.Second
	DefaultHealthCheckInterval = 6 * time.Hour
	DefaultBackupInterval      = 1 * time.Hour
)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// Poller is the periodic trigger collaborator: it drives the due-check pass,
// the health-check cadence, and any extra maintenance jobs. Registration is
// idempotent per job name; registering the same name again replaces the
// previous entry instead of stacking a duplicate.
type Poller struct {
	logger  *zap.Logger
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewPoller creates a poller with panic recovery around every job
func NewPoller(logger *zap.Logger) *Poller {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &Poller{
		logger:  logger.Named("poller"),
		cron:    cron.New(cron.WithChain(cron.Recover(cl))),
		entries: make(map[string]cron.EntryID),
	}
}

// Register adds or replaces a named periodic job
func (p *Poller) Register(name string, interval time.Duration, job func()) error {
	if old, ok := p.entries[name]; ok {
		p.cron.Remove(old)
	}

	spec := fmt.Sprintf("@every %s", interval)
	id, err := p.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	p.entries[name] = id

	p.logger.Info("Registered periodic job",
		zap.String("name", name),
		zap.Duration("interval", interval))
	return nil
}

// Start begins firing registered jobs
func (p *Poller) Start() {
	p.cron.Start()
}

// Stop waits for any running job to finish
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// RunPassJob wraps an engine pass for registration, logging failures instead
// of propagating them into the cron runner
func RunPassJob(e *Engine, logger *zap.Logger) func() {
	return func() {
		if err := e.RunPass(context.Background()); err != nil {
			logger.Error("Evaluation pass failed", zap.Error(err))
		}
	}
}

// RunHealthCheckJob wraps a health check for registration
func RunHealthCheckJob(e *Engine, logger *zap.Logger) func() {
	return func() {
		if _, err := e.RunHealthCheck(context.Background()); err != nil {
			logger.Error("Health check failed", zap.Error(err))
		}
	}
}
