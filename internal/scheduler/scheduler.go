package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
)

// Job is a periodic background task. Run is called with the scheduler's
// context and should return promptly once it is cancelled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	log  *slog.Logger
	cron gocron.Scheduler
	jobs []Job
}

func New(log *slog.Logger, jobs ...Job) (*Scheduler, error) {
	const op = "scheduler.New"

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Scheduler{log: log, cron: cron, jobs: jobs}, nil
}

// Run registers every job, starts them and blocks until ctx is cancelled.
// A job never overlaps with itself; a slow run pushes the next one back.
func (s *Scheduler) Run(ctx context.Context) error {
	const op = "scheduler.Run"

	for _, j := range s.jobs {
		j := j
		log := s.log.With(slog.String("job", j.Name))

		_, err := s.cron.NewJob(
			gocron.DurationJob(j.Interval),
			gocron.NewTask(func() {
				if err := j.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("job failed", sl.Err(err))
				}
			}),
			gocron.WithName(j.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", op, j.Name, err)
		}

		log.Info("job scheduled", slog.Duration("interval", j.Interval))
	}

	s.cron.Start()

	<-ctx.Done()

	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
