// Package jobs runs the periodic background tasks on a cron scheduler.
// Today that is a single job: re-checking for overdue giveaways, a safety
// net behind the one-shot end timers.
package jobs

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"karybot/lib/sl"
)

// Sweeper ends every giveaway whose end time has passed.
// Implemented by giveaway.Service; the handler is idempotent, so an extra
// sweep racing a timer is harmless.
type Sweeper interface {
	SweepOverdue()
}

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewScheduler(spec string, sweeper Sweeper, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		log:  log.With(sl.Module("jobs")),
	}
	if _, err := s.cron.AddFunc(spec, sweeper.SweepOverdue); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
