package worker

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/storage"
)

// Sweeper periodically drops pending referrals that were never completed.
type Sweeper struct {
	store  storage.Store
	maxAge time.Duration
	cron   *cron.Cron
}

func NewSweeper(store storage.Store, maxAge time.Duration) *Sweeper {
	return &Sweeper{store: store, maxAge: maxAge}
}

// Start schedules the sweep and runs it once immediately so a restart does
// not leave stale records waiting for the next tick.
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("schedule", schedule).Dur("max_age", s.maxAge).Msg("Pending referral sweeper started")

	go s.Sweep()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) Sweep() {
	removed, err := s.store.CleanupPendingReferrals(s.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("Pending referral sweep failed")
		return
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Expired pending referrals removed")
	}
}
