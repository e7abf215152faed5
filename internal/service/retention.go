package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

// RetentionJob prunes failed-login-attempt rows past the retention horizon.
// The ledger only needs to cover the correlator window plus whatever the
// operators want for audit; everything older is dead weight.
type RetentionJob struct {
	attempts *repository.AttemptRepository
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

func NewRetentionJob(attempts *repository.AttemptRepository, maxAge time.Duration, schedule string) *RetentionJob {
	return &RetentionJob{
		attempts: attempts,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start registers the schedule and begins running. Stop with Stop.
func (j *RetentionJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.runOnce); err != nil {
		return err
	}
	j.cron.Start()
	log.Printf("[RETENTION] attempt pruning scheduled: %q, max age %s", j.schedule, j.maxAge)
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *RetentionJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-j.maxAge)
	removed, err := j.attempts.PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("[RETENTION] attempt prune failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[RETENTION] pruned %d login attempts older than %s", removed, cutoff.Format(time.RFC3339))
	}
}
