// Package scheduler runs the periodic "sync missing data" job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"posdash/internal/domain"
	"posdash/internal/service"
)

// Syncer is the part of the service a scheduled run drives.
type Syncer interface {
	SyncMetadata(ctx context.Context, fresh bool) ([]domain.SyncResult, error)
	SyncMissing(ctx context.Context) (domain.SyncResult, error)
}

type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	spec   string
	jobID  cron.EntryID
}

// New parses spec with the standard five-field cron syntax (descriptors such
// as "@every 30m" are accepted too). Runs carry no deadline; a sync ends on
// completion or an upstream error.
func New(syncer Syncer, spec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		syncer: syncer,
		spec:   spec,
	}

	var err error
	s.jobID, err = s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("component", "scheduler").Str("schedule", s.spec).Time("next", s.Next()).Msg("sync scheduler started")
}

// Stop waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	log.Info().Str("component", "scheduler").Msg("sync scheduler stopped")
}

func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.jobID).Next
}

// RunOnce refreshes metadata and then pulls missing receipts. A sync already
// running elsewhere makes this run a no-op.
func (s *Scheduler) RunOnce(ctx context.Context) {
	logger := log.With().Str("component", "scheduler").Logger()

	if _, err := s.syncer.SyncMetadata(ctx, false); err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			logger.Info().Msg("sync already running, skipping scheduled run")
			return
		}
		logger.Error().Err(err).Msg("scheduled metadata sync failed")
	}

	result, err := s.syncer.SyncMissing(ctx)
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		logger.Info().Msg("sync already running, skipping scheduled receipt sync")
	case err != nil:
		logger.Error().Err(err).Msg("scheduled receipt sync failed")
	default:
		logger.Info().Int("receipts", result.Records).Bool("partial", result.Partial).Msg("scheduled receipt sync finished")
	}
}
