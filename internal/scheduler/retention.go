// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"

	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes audit rows older than the given number of days
type Purger interface {
	Purge(days int) (int64, error)
}

// RetentionJob purges old audit logs on a cron schedule
type RetentionJob struct {
	cron     *cron.Cron
	purger   Purger
	days     int
	schedule string
}

func NewRetentionJob(purger Purger, schedule string, days int) *RetentionJob {
	return &RetentionJob{
		cron:     cron.New(),
		purger:   purger,
		days:     days,
		schedule: schedule,
	}
}

func (j *RetentionJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.Run); err != nil {
		return err
	}
	j.cron.Start()
	logger.Named("retention").Info("Audit retention job scheduled",
		zap.String("schedule", j.schedule),
		zap.Int("retention_days", j.days),
	)
	return nil
}

// Run performs one purge. Errors are logged; the next tick retries.
func (j *RetentionJob) Run() {
	deleted, err := j.purger.Purge(j.days)
	if err != nil {
		logger.Named("retention").Error("Audit retention run failed", zap.Error(err))
		return
	}
	logger.Named("retention").Info("Audit retention run finished", zap.Int64("deleted", deleted))
}

// Stop waits for a running purge to finish
func (j *RetentionJob) Stop() context.Context {
	return j.cron.Stop()
}
