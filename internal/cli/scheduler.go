package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type scheduledJob struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
}

// startScheduler registers each job as a fixed-interval gocron job bound to
// ctx and starts the scheduler. Jobs with a non-positive interval are skipped.
func startScheduler(ctx context.Context, logger *slog.Logger, jobs ...scheduledJob) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.every <= 0 {
			logger.Warn("job disabled", "job", job.name)
			continue
		}
		job := job
		_, err := sched.NewJob(
			gocron.DurationJob(job.every),
			gocron.NewTask(func() {
				if err := job.run(ctx); err != nil {
					logger.Warn("scheduled job failed", "job", job.name, "error", err)
				}
			}),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	sched.Start()
	return sched, nil
}
