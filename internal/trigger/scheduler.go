// Package trigger schedules background maintenance work. Currently the
// only job is the periodic transaction sync feeding the fraud screen.
package trigger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// syncTimeout bounds one sync run so a stuck provider cannot pile up jobs.
const syncTimeout = 25 * time.Second

// SyncFunc refreshes transaction history for a user.
type SyncFunc func(ctx context.Context, userID string) error

// Scheduler runs the transaction sync on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	userID string
	sync   SyncFunc
}

// New builds a scheduler. schedule uses standard cron syntax, e.g.
// "*/5 * * * *" for every five minutes.
func New(schedule, userID string, sync SyncFunc) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		userID: userID,
		sync:   sync,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduling. An immediate first sync runs synchronously so
// the fraud screen has history before the first query arrives.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.syncOnce(ctx); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Msg("sync_scheduler_started")
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	<-stopped.Done()
	log.Info().Msg("sync_scheduler_stopped")
}

func (s *Scheduler) run() {
	if err := s.syncOnce(context.Background()); err != nil {
		log.Warn().Err(err).Msg("transaction_sync_failed")
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return s.sync(ctx, s.userID)
}
