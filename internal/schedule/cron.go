package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron runs tasks on robfig/cron constant-delay schedules. Intervals below
// one second are rounded up to one second.
type Cron struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewCron(logger *slog.Logger) *Cron {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Cron{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			// Recover must wrap the job inside SkipIfStillRunning so a panic
			// still releases the skip token.
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		logger: logger,
	}
}

func (c *Cron) Every(name string, d time.Duration, fn func()) error {
	if d <= 0 {
		return fmt.Errorf("register %s: %w", name, ErrInvalidInterval)
	}
	id := c.cron.Schedule(cron.Every(d), cron.FuncJob(fn))
	c.logger.Debug("task registered", "task", name, "every", d, "entry", id)
	return nil
}

func (c *Cron) Start() {
	c.cron.Start()
	c.logger.Info("scheduler started", "tasks", len(c.cron.Entries()))
}

func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("scheduler stopped")
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
